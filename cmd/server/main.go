package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/kelurahan-portal/internal/config"
	"github.com/garyjia/kelurahan-portal/internal/container"
	httpapi "github.com/garyjia/kelurahan-portal/internal/interfaces/http"
	"github.com/garyjia/kelurahan-portal/pkg/database"
	"github.com/garyjia/kelurahan-portal/pkg/utils"
)

var (
	configPath string
	showStatus bool
)

var rootCmd = &cobra.Command{
	Use:   "kelurahan-portal",
	Short: "Village service application portal",
	Long: `Serves the application approval workflow: citizen submissions,
RT/RW, village staff and village head review, and numbered letter generation.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		bundle, err := container.ProvideDatabase(cmd.Context(), &cfg.Database, logger)
		if err != nil {
			return err
		}
		defer bundle.Database.Close()
		logger.Info("Migrations applied", zap.String("driver", cfg.Database.Driver))

		if !showStatus {
			return nil
		}
		status, err := database.NewMigrator(bundle.Database, logger).Status(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range status {
			fmt.Fprintf(cmd.OutOrStdout(), "%03d %-32s applied=%t\n", m.Version, m.Name, m.Applied)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("KELURAHAN_CONFIG"), "path to YAML config file (optional)")
	migrateCmd.Flags().BoolVar(&showStatus, "status", false, "print migration status after applying")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads .env, configuration and the logger
func bootstrap() (*config.Config, *zap.Logger, error) {
	// A missing .env is fine; the environment may be set by the deployment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, logger, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting Kelurahan Portal",
		zap.String("version", "1.0.0"),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Int("port", cfg.Server.Port))

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	server := httpapi.NewServer(
		httpapi.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		},
		c.ApplicationService(),
		c.WorkflowEngine(),
		c.MetricsHandler(),
		utils.NewKVLogger(logger),
	)

	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("Server exited successfully")
	return nil
}

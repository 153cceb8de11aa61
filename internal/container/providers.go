// Package container wires the portal's components and owns their lifecycle.
package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/kelurahan-portal/internal/application/dispatcher"
	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/application/service"
	"github.com/garyjia/kelurahan-portal/internal/application/workflow"
	"github.com/garyjia/kelurahan-portal/internal/config"
	"github.com/garyjia/kelurahan-portal/internal/domain/event"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/cache"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/document"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/metrics"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/persistence/repository"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/storage"
	"github.com/garyjia/kelurahan-portal/pkg/database"
	"github.com/garyjia/kelurahan-portal/pkg/utils"
)

// DatabaseBundle holds database-related components
type DatabaseBundle struct {
	Database       *database.DB
	TransactionMgr *sqldb.DB
}

// RepositoryBundle groups all repositories
type RepositoryBundle struct {
	Applications port.ApplicationRepository
	History      port.HistoryRepository
	Sequences    port.SequenceRepository
	Users        *repository.UserRepository
	Templates    *repository.TemplateRepository
}

// DocumentBundle holds generated letter components
type DocumentBundle struct {
	FileStorage port.FileStorage
	Renderer    port.DocumentRenderer
}

// ProvideDatabase opens the configured database and applies pending migrations
func ProvideDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	if cfg.Driver == string(database.DialectSQLite) {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := database.New(database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Database:       db,
		TransactionMgr: sqldb.FromDatabase(db, logger),
	}, nil
}

// ProvideRepositories creates all repositories on db
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Applications: repository.NewApplicationRepository(db, logger),
		History:      repository.NewHistoryRepository(db, logger),
		Sequences:    repository.NewSequenceRepository(db, logger),
		Users:        repository.NewUserRepository(db, logger),
		Templates:    repository.NewTemplateRepository(db, logger),
	}, nil
}

// ProvideTemplateLookup puts the Redis cache in front of the template
// repository when enabled. The returned client is nil when caching is off.
func ProvideTemplateLookup(cfg *config.RedisConfig, templates port.ServiceTemplateLookup, logger *zap.Logger) (port.ServiceTemplateLookup, *redis.Client) {
	if cfg == nil || !cfg.Enabled {
		return templates, nil
	}

	client := cache.NewClient(cfg.Address, cfg.Password, cfg.DB)
	logger.Info("Template cache enabled",
		zap.String("address", cfg.Address),
		zap.Duration("ttl", cfg.TemplateTTL))

	return cache.NewTemplateCache(templates, client, cfg.TemplateTTL, logger), client
}

// ProvideDocuments creates the letter storage and renderer
func ProvideDocuments(cfg *config.DocumentsConfig, logger *zap.Logger) (*DocumentBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("documents config is required")
	}

	if err := os.MkdirAll(cfg.StorageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}

	fs := storage.NewLocalFileStorage(cfg.StorageDir, logger)
	return &DocumentBundle{
		FileStorage: fs,
		Renderer:    document.NewLetterRenderer(fs, cfg.BaseURL, cfg.VillageName, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher with the audit log subscriber
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger)))
	err := d.Subscribe("event-log", func(ctx context.Context, evt *event.Event) error {
		logger.Info("Workflow event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.Int64("application_id", evt.ApplicationID),
			zap.Any("payload", evt.Payload))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// WorkflowDeps holds dependencies for the workflow engine
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	Templates  port.ServiceTemplateLookup
	Renderer   port.DocumentRenderer
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Metrics    *metrics.Recorder
	Config     *config.WorkflowConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine and its numbering service
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}

	numberer := workflow.NewNumberingService(deps.Repos.Sequences, deps.Renderer)

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(utils.NewKVLogger(deps.Logger)),
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}
	if deps.Config != nil {
		opts = append(opts, workflow.WithRetry(deps.Config.MaxAttempts, deps.Config.RetryBackoff))
	}

	return workflow.NewEngine(
		deps.Repos.Applications,
		deps.Repos.History,
		deps.Repos.Users,
		deps.Templates,
		numberer,
		deps.TxManager,
		opts...,
	), nil
}

// ProvideApplicationService creates the submission and read-side service.
// Submission checks is_active against the database, never the template cache.
func ProvideApplicationService(repos *RepositoryBundle, txManager port.TransactionManager, d dispatcher.Dispatcher, logger *zap.Logger) service.ApplicationService {
	return service.NewApplicationService(
		repos.Applications,
		repos.History,
		repos.Users,
		repos.Templates,
		txManager,
		d,
		utils.NewKVLogger(logger),
	)
}

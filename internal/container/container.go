package container

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/kelurahan-portal/internal/application/dispatcher"
	"github.com/garyjia/kelurahan-portal/internal/application/port"
	"github.com/garyjia/kelurahan-portal/internal/application/service"
	"github.com/garyjia/kelurahan-portal/internal/application/workflow"
	"github.com/garyjia/kelurahan-portal/internal/config"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/cache"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/metrics"
	"github.com/garyjia/kelurahan-portal/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/kelurahan-portal/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	database     *database.DB
	db           *sqldb.DB
	repositories *RepositoryBundle
	redis        *redis.Client
	templates    port.ServiceTemplateLookup

	// Infrastructure - Documents
	documents *DocumentBundle

	// Application
	metrics      *metrics.Recorder
	dispatcher   dispatcher.Dispatcher
	workflow     workflow.WorkflowEngine
	applications service.ApplicationService

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start for that.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database, migrations and repositories
// 2. Template cache
// 3. Document storage and renderer
// 4. Metrics and event dispatcher
// 5. Workflow engine and application service
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	// Step 1: Database and repositories
	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("driver", string(c.db.Dialect())))

	// Step 2: Template cache
	c.templates, c.redis = ProvideTemplateLookup(&c.config.Redis, c.repositories.Templates, c.logger)
	if c.redis != nil {
		if err := cache.Ping(ctx, c.redis); err != nil {
			c.logger.Warn("Template cache unreachable, lookups fall back to the database", zap.Error(err))
		}
	}

	// Step 3: Documents
	documents, err := ProvideDocuments(&c.config.Documents, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize documents: %w", err)
	}
	c.documents = documents
	c.logger.Info("Document storage initialized", zap.String("dir", c.config.Documents.StorageDir))

	// Step 4: Metrics and dispatcher
	c.metrics = metrics.NewRecorder()
	d, err := ProvideDispatcher(c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.dispatcher = d
	if err := c.metrics.Subscribe(c.dispatcher); err != nil {
		return fmt.Errorf("failed to subscribe metrics: %w", err)
	}

	// Step 5: Workflow engine and services
	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		Templates:  c.templates,
		Renderer:   c.documents.Renderer,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Metrics:    c.metrics,
		Config:     &c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize workflow engine: %w", err)
	}
	c.workflow = engine
	c.applications = ProvideApplicationService(c.repositories, c.db, c.dispatcher, c.logger)
	c.logger.Info("Workflow engine initialized",
		zap.Int("max_attempts", c.config.Workflow.MaxAttempts),
		zap.Duration("retry_backoff", c.config.Workflow.RetryBackoff))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close shuts down all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, err error) {
		if err != nil {
			status.Components[name] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	if c.database != nil {
		set("database", c.database.PingContext(ctx))
	} else {
		set("database", fmt.Errorf("not initialized"))
	}

	// The cache is optional; an unreachable Redis degrades but does not fail health
	if c.redis != nil {
		if err := cache.Ping(ctx, c.redis); err != nil {
			status.Components["cache"] = ComponentHealth{Healthy: false, Message: err.Error()}
		} else {
			status.Components["cache"] = ComponentHealth{Healthy: true}
		}
	}

	if c.workflow != nil && c.dispatcher != nil {
		set("workflow", nil)
	} else {
		set("workflow", fmt.Errorf("not initialized"))
	}

	return status
}

// DB returns the transaction manager
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the workflow engine
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.workflow
}

// ApplicationService returns the application service
func (c *Container) ApplicationService() service.ApplicationService {
	return c.applications
}

// MetricsHandler serves the Prometheus registry
func (c *Container) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration
func (c *Container) Config() *config.Config {
	return c.config
}

func (c *Container) initDatabase(ctx context.Context) error {
	dbBundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = dbBundle.Database
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.database.Close()
		return err
	}

	c.repositories = repos
	return nil
}

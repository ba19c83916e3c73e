// Package container provides dependency injection and lifecycle management
// for the patient workflow service following Clean Architecture principles.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/garyjia/medoffice-workflow/internal/application/dispatcher"
	"github.com/garyjia/medoffice-workflow/internal/application/port"
	"github.com/garyjia/medoffice-workflow/internal/application/service"
	"github.com/garyjia/medoffice-workflow/internal/application/workflow"
	"github.com/garyjia/medoffice-workflow/internal/config"
	domainwf "github.com/garyjia/medoffice-workflow/internal/domain/workflow"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/external/openai"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/lock"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/summary"
	"github.com/garyjia/medoffice-workflow/internal/infrastructure/worker"
	"github.com/garyjia/medoffice-workflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the SQLite database and applies the embedded migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(database.Migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Status:  repository.NewStatusRepository(sqlDB, logger),
		Rule:    repository.NewRuleRepository(sqlDB, logger),
		State:   repository.NewWorkflowStateRepository(sqlDB, logger),
		History: repository.NewHistoryRepository(sqlDB, logger),
	}, nil
}

// ProvideLocker returns the per-patient lock for the configured backend.
// The Redis client is returned so the container can close it; it is nil for
// the in-process backend.
func ProvideLocker(cfg *config.Config, logger *zap.Logger) (port.PatientLocker, *redis.Client, error) {
	if cfg.Workflow.LockBackend != config.LockBackendRedis {
		return workflow.NewKeyedLocker(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	wait := cfg.Workflow.LockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	locker := lock.NewRedisLocker(client, lock.Config{
		TTL:  cfg.Redis.LockTTL,
		Wait: cfg.Workflow.LockWait,
	}, logger)
	return locker, client, nil
}

// ProvideSummaryGenerator returns the configured summary generator.
func ProvideSummaryGenerator(cfg *config.Config, logger *zap.Logger) (port.SummaryGenerator, error) {
	if cfg.Summary.Provider != config.SummaryProviderOpenAI {
		return summary.NewTemplateGenerator(), nil
	}

	prompts, err := openai.LoadPrompts(cfg.Summary.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load summary prompts: %w", err)
	}

	return openai.NewSummarizer(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Timeout:     cfg.OpenAI.Timeout,
	}, prompts, logger), nil
}

// ProvideMessenger returns the Lark messenger, or nil when notifications are disabled.
func ProvideMessenger(cfg *config.LarkConfig, logger *zap.Logger) port.MessageSender {
	if !cfg.Enabled {
		return nil
	}
	return lark.NewMessenger(lark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		ChatID:    cfg.ChatID,
		BaseURL:   cfg.BaseURL,
	}, logger)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")})), nil
}

// WorkflowDeps holds dependencies for the catalog and workflow engine.
type WorkflowDeps struct {
	Config     *config.WorkflowConfig
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Locker     port.PatientLocker
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// WorkflowBundle holds the in-memory catalog and the engine built on it.
type WorkflowBundle struct {
	Registry *domainwf.StatusRegistry
	Rules    *domainwf.TransitionRules
	Catalog  service.CatalogService
	Engine   workflow.Engine
}

// ProvideWorkflow loads the catalog from the store and creates the engine.
func ProvideWorkflow(ctx context.Context, deps *WorkflowDeps) (*WorkflowBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}

	registry := domainwf.NewStatusRegistry(workflow.NewReferenceChecker(deps.Repos.State))
	rules := domainwf.NewTransitionRules(registry)

	catalog := service.NewCatalogService(
		registry, rules,
		deps.Repos.Status, deps.Repos.Rule,
		deps.TxManager,
		&zapLoggerAdapter{logger: deps.Logger.Named("catalog")},
		service.WithSeedDefaults(deps.Config.SeedDefaults),
		service.WithCatalogDispatcher(deps.Dispatcher),
	)
	if err := catalog.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load workflow catalog: %w", err)
	}

	if !registry.Has(deps.Config.DefaultStatus) {
		deps.Logger.Warn("Default status is not in the catalog; new patients will be rejected until it is added",
			zap.String("default_status", deps.Config.DefaultStatus))
	}

	engine := workflow.NewEngine(
		registry, rules,
		deps.Repos.State, deps.Repos.History,
		deps.TxManager,
		workflow.WithLocker(deps.Locker),
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger.Named("workflow")}),
		workflow.WithDefaultStatus(deps.Config.DefaultStatus),
	)

	return &WorkflowBundle{
		Registry: registry,
		Rules:    rules,
		Catalog:  catalog,
		Engine:   engine,
	}, nil
}

// ServiceDeps holds dependencies for the application services.
type ServiceDeps struct {
	Workflow   *WorkflowBundle
	Repos      *RepositoryBundle
	Generator  port.SummaryGenerator
	Messenger  port.MessageSender
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// care-team notifier when a messenger is configured.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Workflow == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger.Named("service")}
	bundle := &ServiceBundle{
		Catalog: deps.Workflow.Catalog,
		Summary: service.NewSummaryService(deps.Workflow.Engine, deps.Workflow.Registry, deps.Generator, deps.Dispatcher, logger),
		Export:  service.NewExportService(deps.Workflow.Catalog, deps.Repos.State, deps.Repos.History, logger),
	}

	if deps.Messenger != nil {
		registry := deps.Workflow.Registry
		names := func(id string) string {
			if st, err := registry.Get(id); err == nil && st.Name != "" {
				return st.Name
			}
			return id
		}
		bundle.Notification = service.NewNotificationService(deps.Messenger, names, logger)
		bundle.Notification.Register(deps.Dispatcher)
		deps.Logger.Info("Care-team notifications enabled")
	}

	return bundle, nil
}

// ProvideWorkers creates the worker manager and registers the history
// auditor when an audit interval is configured.
func ProvideWorkers(cfg *config.WorkflowConfig, repos *RepositoryBundle, tx port.TransactionManager, logger *zap.Logger) *worker.Manager {
	manager := worker.NewManager(logger.Named("worker"))
	if cfg.AuditInterval > 0 {
		manager.Register(worker.NewHistoryAuditor(worker.HistoryAuditorConfig{
			Interval: cfg.AuditInterval,
		}, repos.State, repos.History, tx, logger.Named("audit")))
	}
	return manager
}

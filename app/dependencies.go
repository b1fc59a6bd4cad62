package app

import (
	"context"
	"fmt"

	"github.com/upb/dataset-search-api/authz"
	"github.com/upb/dataset-search-api/config"
	"github.com/upb/dataset-search-api/handlers"
	"github.com/upb/dataset-search-api/internal/observability"
	"github.com/upb/dataset-search-api/middleware"
	"github.com/upb/dataset-search-api/oidc"
	"github.com/upb/dataset-search-api/repositories"
	"github.com/upb/dataset-search-api/repositories/postgres"
	"github.com/upb/dataset-search-api/services"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Datasets  repositories.DatasetRepository
	TxManager repositories.TransactionManager

	// Auth
	AuthConfig     oidc.AuthConfig
	KeyCache       *oidc.KeySetCache
	Verifier       *oidc.Verifier
	Gate           *authz.Gate
	AuthMiddleware *middleware.AuthMiddleware

	// Services and handlers
	DatasetService *services.DatasetService
	DatasetHandler *handlers.DatasetHandler
	HealthHandler  *handlers.HealthHandler
}

// NewDependencies connects to the database and wires everything on top of it
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithFactory(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires all dependencies over an existing
// repository factory
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     observability.NewMetrics(),
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initServices(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase applies the schema
func (d *Dependencies) initDatabase(ctx context.Context) error {
	if err := d.RepoFactory.InitSchema(ctx); err != nil {
		return err
	}
	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Datasets = repos.Datasets
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initAuth loads the audience mapping and builds the verification chain:
// key-set cache, verifier, authorization gate and the auth middleware
func (d *Dependencies) initAuth(cfg *config.Config) error {
	authConfig, err := config.LoadAuthConfig(cfg.Auth.ConfigFile)
	if err != nil {
		return err
	}
	d.AuthConfig = authConfig

	d.KeyCache = oidc.NewKeySetCache(oidc.CacheConfig{
		RefreshInterval: cfg.Auth.RefreshInterval,
		FetchTimeout:    cfg.Auth.FetchTimeout,
		Metrics:         d.Metrics,
	}, d.Logger.Named("keyset_cache"))

	d.Verifier = oidc.NewVerifier(oidc.Config{
		AuthConfig: authConfig,
		Leeway:     cfg.Auth.ClockLeeway,
		Metrics:    d.Metrics,
	}, d.KeyCache, d.Logger.Named("verifier"))

	d.Gate = authz.NewGate(d.Metrics, d.Logger.Named("authz"))
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Verifier, cfg.Auth.VOOverride, d.Logger)

	audiences := make([]string, 0, len(authConfig))
	for audience := range authConfig {
		audiences = append(audiences, audience)
	}
	d.Logger.Info("auth initialized",
		zap.Strings("audiences", audiences),
		zap.Duration("refresh_interval", cfg.Auth.RefreshInterval),
		zap.Bool("vo_override", cfg.Auth.VOOverride != ""))

	return nil
}

// initServices wires services and handlers
func (d *Dependencies) initServices(cfg *config.Config) {
	d.DatasetService = services.NewDatasetService(d.Datasets, d.TxManager, d.Gate, cfg.Auth.WriteGroup, d.Logger)
	d.DatasetHandler = handlers.NewDatasetHandler(d.DatasetService, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.KeyCache, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}

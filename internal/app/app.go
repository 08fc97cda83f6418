// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the progress service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/learner-progress/internal/api"
	"github.com/JakeFAU/learner-progress/internal/clock/system"
	"github.com/JakeFAU/learner-progress/internal/config"
	"github.com/JakeFAU/learner-progress/internal/events"
	"github.com/JakeFAU/learner-progress/internal/events/sinks"
	"github.com/JakeFAU/learner-progress/internal/identity"
	"github.com/JakeFAU/learner-progress/internal/metrics"
	"github.com/JakeFAU/learner-progress/internal/policy/ratelimit"
	pubmemory "github.com/JakeFAU/learner-progress/internal/publisher/memory"
	"github.com/JakeFAU/learner-progress/internal/publisher/pubsub"
	"github.com/JakeFAU/learner-progress/internal/storage/breaker"
	"github.com/JakeFAU/learner-progress/internal/storage/memory"
	"github.com/JakeFAU/learner-progress/internal/storage/postgres"
	"github.com/JakeFAU/learner-progress/internal/store"
	"github.com/JakeFAU/learner-progress/internal/topology"
	"github.com/JakeFAU/learner-progress/internal/tracker"
)

// Options carries process-level collaborators that tests replace.
type Options struct {
	// Registerer receives the completion collectors. Defaults to the
	// Prometheus default registerer.
	Registerer prometheus.Registerer
	// Gatherer backs /metrics. Defaults to the process-wide handler.
	Gatherer prometheus.Gatherer
}

// App holds all the shared, long-lived services for the application.
type App struct {
	logger   *zap.Logger
	repo     store.ProgressRepository
	topology topology.Provider
	service  *tracker.Service
	server   *api.Server
	closers  []func() error
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Repository returns the (possibly breaker-wrapped) progress repository.
func (a *App) Repository() store.ProgressRepository { return a.repo }

// Service returns the tracker service.
func (a *App) Service() *tracker.Service { return a.service }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// New builds every service from cfg and fails fast when a critical one
// cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	a := &App{logger: logger}
	logger.Info("initializing application services",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("publisher", cfg.Events.Publisher),
	)

	repo, err := a.openRepository(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Breaker.Enabled {
		repo = breaker.New(repo, breaker.Config{
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			Timeout:          cfg.Breaker.Timeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			MinRequests:      cfg.Breaker.MinRequests,
		}, logger.Named("breaker"))
	}
	a.repo = repo

	catalog, err := topology.LoadCatalog(cfg.Topology.CatalogPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load topology: %w", err)
	}
	a.topology = catalog

	fanout, err := a.buildFanout(ctx, cfg, opts.Registerer)
	if err != nil {
		a.Close()
		return nil, err
	}

	service, err := tracker.NewService(tracker.Deps{
		Repo:     repo,
		Topology: catalog,
		Clock:    system.New(),
		Emitter:  fanout,
		Observer: metrics.NewObserver(),
		Logger:   logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = service

	metricsHandler := metrics.Handler()
	if opts.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
	}
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst})

	a.server = api.NewServer(api.Options{
		Tracker:            service,
		Resolver:           identity.NewHeaderResolver([]byte(cfg.Auth.JWTSecret), cfg.Auth.Leeway),
		Ready:              repo,
		Metrics:            metricsHandler,
		Middleware:         []func(http.Handler) http.Handler{metrics.Middleware},
		IdentityMiddleware: []func(http.Handler) http.Handler{limiter.Middleware(api.RejectTooManyRequests)},
		RequestTimeout:     cfg.Server.WriteTimeout,
		Logger:             logger,
	})

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) openRepository(ctx context.Context, cfg config.Config) (store.ProgressRepository, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		a.logger.Warn("using in-memory progress store; data is lost on restart")
		return memory.NewProgressStore(), nil
	case config.DriverPostgres:
		pg, err := OpenPostgres(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		if cfg.DB.MigrateOnStart {
			if err := pg.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate progress schema: %w", err)
			}
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

// OpenPostgres connects the Postgres progress store described by db.
func OpenPostgres(ctx context.Context, db config.DBConfig) (*postgres.ProgressStore, error) {
	pg, err := postgres.NewProgressStore(ctx, postgres.Config{
		DSN:               db.DSN,
		Table:             db.Table,
		MaxConns:          db.MaxConns,
		MinConns:          db.MinConns,
		MaxConnLifetime:   db.MaxConnLifetime,
		HealthCheckPeriod: db.HealthCheckPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres progress store: %w", err)
	}
	return pg, nil
}

func (a *App) buildFanout(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*events.Fanout, error) {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		a.logger.Warn("completion collectors already registered", zap.Error(err))
	}
	all := []events.Sink{sinks.NewLogSink(a.logger.Named("completions"))}
	if promSink != nil {
		all = append(all, promSink)
	}

	switch cfg.Events.Publisher {
	case config.PublisherNone, "":
	case config.PublisherMemory:
		all = append(all, sinks.NewPublisherSink(pubmemory.New(), cfg.PubSub.TopicName))
	case config.PublisherPubSub:
		pub, err := pubsub.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		all = append(all, sinks.NewPublisherSink(pub, cfg.PubSub.TopicName))
	default:
		return nil, fmt.Errorf("unknown publisher: %s", cfg.Events.Publisher)
	}

	return events.NewFanout(events.Config{
		SinkTimeout: cfg.Events.SinkTimeout,
		Logger:      a.logger.Named("events"),
	}, all...), nil
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing resource", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync() //nolint:errcheck // best-effort flush
}

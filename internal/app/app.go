// Package app собирает зависимости бинарников из config.Config.
//
// API, worker и scheduler работают с одним оркестратором: каталог,
// политики, хранилище executions, rate limiter, Runner, брокер и
// object storage подключаются здесь одинаково для всех трёх.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Runbooks/internal/blob"
	"github.com/shaiso/Runbooks/internal/catalog"
	"github.com/shaiso/Runbooks/internal/clock"
	"github.com/shaiso/Runbooks/internal/config"
	"github.com/shaiso/Runbooks/internal/memstore"
	"github.com/shaiso/Runbooks/internal/mq"
	"github.com/shaiso/Runbooks/internal/orchestrator"
	"github.com/shaiso/Runbooks/internal/policy"
	"github.com/shaiso/Runbooks/internal/ratelimit"
	"github.com/shaiso/Runbooks/internal/repo"
	"github.com/shaiso/Runbooks/internal/runner"
)

// App — собранные зависимости.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Catalog      *catalog.Catalog
	Policies     *policy.Service
	Executions   orchestrator.ExecutionStore
	Orchestrator *orchestrator.Orchestrator

	// Pool — nil в режиме STORE_MEMORY.
	Pool *pgxpool.Pool

	// MQ — nil, если брокер недоступен.
	MQ *mq.Connection

	runbooks  *repo.RunbookRepo
	clock     clock.Clock
	startedAt time.Time
	closers   []func()
}

// Option настраивает App.
type Option func(*App)

// WithClock подменяет системные часы всех компонентов.
func WithClock(clk clock.Clock) Option {
	return func(a *App) { a.clock = clk }
}

// New собирает App. Ошибки подключения к БД фатальны,
// недоступный брокер или object storage — нет.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	a := &App{Config: cfg, Logger: logger, clock: clock.Real{}}
	for _, opt := range opts {
		opt(a)
	}
	clk := a.clock
	a.startedAt = clk.Now()

	seed, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	a.Catalog, err = catalog.New(seed.Runbooks)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	logger.Info("catalog loaded", "path", cfg.CatalogFile, "runbooks", a.Catalog.Len())

	var (
		policyStore policy.Store
		limiter     orchestrator.RateLimiter
	)
	if cfg.UseMemory {
		logger.Warn("using in-memory stores, state is lost on restart")
		policyStore = memstore.NewPolicyStore()
		a.Executions = memstore.NewExecutionStore()
		limiter = ratelimit.NewMemory(clk)
	} else {
		a.Pool, err = repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, a.Pool.Close)
		if err := repo.Migrate(ctx, a.Pool); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("database connected")

		policyStore = repo.NewPolicyRepo(a.Pool)
		a.Executions = repo.NewExecutionRepo(a.Pool)
		a.runbooks = repo.NewRunbookRepo(a.Pool)
		limiter = repo.NewRateLedger(a.Pool, clk, ratelimit.Window)
	}

	a.Policies = policy.New(policy.Config{
		Store:    policyStore,
		Runbooks: a.Catalog,
		Clock:    clk,
		Logger:   logger,
	})

	var events orchestrator.EventPublisher
	a.MQ, err = mq.NewConnection(cfg.RabbitURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, events are not published", "error", err)
		a.MQ = nil
	} else {
		a.closers = append(a.closers, func() { _ = a.MQ.Close() })
		if err := mq.SetupTopology(ctx, a.MQ); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		events = mq.NewPublisher(a.MQ, logger)
		logger.Info("RabbitMQ connected")
	}
	if cfg.DispatchMode == orchestrator.DispatchAsync && a.MQ == nil {
		logger.Warn("async dispatch without broker, worker falls back to polling")
	}

	var results orchestrator.ResultStore
	if cfg.Blob.Enabled() {
		store, err := blob.NewMinioStore(ctx, cfg.Blob)
		if err != nil {
			logger.Warn("object storage not available, large results stay inline", "error", err)
		} else {
			results = store
			logger.Info("object storage connected", "bucket", cfg.Blob.Bucket)
		}
	}

	a.Orchestrator = orchestrator.New(orchestrator.Config{
		Catalog:      a.Catalog,
		Policies:     a.Policies,
		Limiter:      limiter,
		Runner:       a.newRunner(),
		Store:        a.Executions,
		Events:       events,
		Results:      results,
		OffloadBytes: cfg.ResultOffloadBytes,
		DispatchMode: cfg.DispatchMode,
		AdminRole:    cfg.AdminRole,
		Clock:        clk,
		Logger:       logger,
	})

	if err := a.SyncCatalog(ctx, seed); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newRunner: внешний endpoint, если задан, иначе dev-заглушки.
func (a *App) newRunner() *runner.Dispatcher {
	registry := runner.NewRegistry()
	if a.Config.RunnerBaseURL != "" {
		registry.SetFallback(&runner.HTTPRunbook{
			BaseURL: a.Config.RunnerBaseURL,
			Client:  &http.Client{},
		})
		a.Logger.Info("runner: remote automation endpoint", "base_url", a.Config.RunnerBaseURL)
	} else {
		runner.RegisterStubs(registry)
		a.Logger.Warn("runner: RUNNER_BASE_URL not set, using built-in stubs")
	}

	return runner.NewDispatcher(runner.DispatcherConfig{
		Registry:       registry,
		Catalog:        a.Catalog,
		DefaultTimeout: a.Config.RunnerTimeout,
		Logger:         a.Logger,
	})
}

// SyncCatalog записывает каталог в БД и добавляет политики из seed.
// Политики, уже существующие для пары (runbook, trigger_role), не меняются:
// правки через API важнее seed-файла.
func (a *App) SyncCatalog(ctx context.Context, seed *catalog.Seed) error {
	if a.runbooks != nil {
		if err := a.runbooks.Sync(ctx, seed.Runbooks, a.clock.Now()); err != nil {
			return fmt.Errorf("sync runbooks: %w", err)
		}
	}

	created := 0
	for i := range seed.Policies {
		p := seed.Policies[i]
		_, err := a.Policies.Create(ctx, &p)
		switch {
		case err == nil:
			created++
		case errors.Is(err, policy.ErrConflictingPolicy):
		default:
			a.Logger.Warn("seed policy rejected",
				"runbook", p.RunbookName,
				"trigger_role", p.TriggerRole,
				"error", err,
			)
		}
	}
	if created > 0 {
		a.Logger.Info("seed policies created", "count", created)
	}
	return nil
}

// WatchCatalog запускает hot reload каталога, если он включён.
func (a *App) WatchCatalog(ctx context.Context) error {
	if !a.Config.CatalogWatch {
		return nil
	}

	w, err := catalog.NewWatcher(catalog.WatcherConfig{
		Path:    a.Config.CatalogFile,
		Catalog: a.Catalog,
		OnReload: func(ctx context.Context, seed *catalog.Seed) {
			if err := a.SyncCatalog(ctx, seed); err != nil {
				a.Logger.Error("catalog sync failed", "error", err)
			}
		},
		Logger: a.Logger,
	})
	if err != nil {
		return err
	}

	go func() {
		if err := w.Run(ctx); err != nil {
			a.Logger.Error("catalog watcher stopped", "error", err)
		}
	}()
	return nil
}

// OpsMux возвращает mux с /healthz и /metrics.
func (a *App) OpsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if a.Pool != nil {
			if err := a.Pool.Ping(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", a.clock.Now().Sub(a.startedAt).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Close освобождает ресурсы в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

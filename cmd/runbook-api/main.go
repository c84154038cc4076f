package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Runbooks/internal/api"
	"github.com/shaiso/Runbooks/internal/app"
	"github.com/shaiso/Runbooks/internal/auth"
	"github.com/shaiso/Runbooks/internal/clock"
	"github.com/shaiso/Runbooks/internal/config"
	"github.com/shaiso/Runbooks/internal/scheduler"
	"github.com/shaiso/Runbooks/internal/telemetry"
	"github.com/shaiso/Runbooks/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger("runbook-api")
	logger.Info("starting runbook-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.WatchCatalog(ctx); err != nil {
		logger.Warn("catalog watcher disabled", "error", err)
	}

	var resolver auth.Resolver = auth.HeaderResolver{}
	if cfg.AuthMode == config.AuthJWT {
		resolver, err = auth.NewJWTResolver(cfg.JWTSecret)
		if err != nil {
			logger.Error("failed to setup auth", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("auth configured", "mode", cfg.AuthMode)

	handler := api.NewHandler(api.Config{
		Orchestrator: a.Orchestrator,
		Resolver:     resolver,
		Logger:       logger,
	})

	mux := a.OpsMux()
	handler.RegisterRoutes(mux)

	// Состояние в памяти не разделяется между процессами,
	// поэтому worker и scheduler работают здесь же.
	var (
		w     *worker.Worker
		sched *scheduler.Scheduler
	)
	if cfg.UseMemory {
		w = worker.New(worker.Config{
			Dispatcher:   a.Orchestrator,
			Queued:       a.Executions,
			Conn:         a.MQ,
			Clock:        clock.Real{},
			PollInterval: cfg.WorkerPollInterval,
			Logger:       logger.With("component", "worker"),
		})
		if err := w.Start(ctx); err != nil {
			logger.Error("failed to start embedded worker", "error", err)
			os.Exit(1)
		}

		sched, err = scheduler.New(scheduler.Config{
			Sweeper:  a.Orchestrator,
			Schedule: cfg.EscalationSchedule,
			Logger:   logger.With("component", "scheduler"),
		})
		if err != nil {
			logger.Error("failed to create embedded scheduler", "error", err)
			os.Exit(1)
		}
		if err := sched.Start(ctx); err != nil {
			logger.Error("failed to start embedded scheduler", "error", err)
			os.Exit(1)
		}
	}

	addr := config.Addr(cfg.APIPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if w != nil {
		w.Stop()
	}

	logger.Info("stopped")
}

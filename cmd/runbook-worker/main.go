package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Runbooks/internal/app"
	"github.com/shaiso/Runbooks/internal/clock"
	"github.com/shaiso/Runbooks/internal/config"
	"github.com/shaiso/Runbooks/internal/telemetry"
	"github.com/shaiso/Runbooks/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger("runbook-worker")
	logger.Info("starting runbook-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.UseMemory {
		logger.Error("runbook-worker requires PostgreSQL, unset STORE_MEMORY")
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

	if a.MQ == nil {
		logger.Warn("running in polling-only mode")
	}

	w := worker.New(worker.Config{
		Dispatcher:   a.Orchestrator,
		Queued:       a.Executions,
		Conn:         a.MQ,
		Clock:        clock.Real{},
		PollInterval: cfg.WorkerPollInterval,
		Logger:       logger,
	})
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	addr := config.Addr(cfg.WorkerPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           a.OpsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("health server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down worker")

	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("worker stopped")
}

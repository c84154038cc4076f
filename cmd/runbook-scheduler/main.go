package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Runbooks/internal/app"
	"github.com/shaiso/Runbooks/internal/config"
	"github.com/shaiso/Runbooks/internal/repo"
	"github.com/shaiso/Runbooks/internal/scheduler"
	"github.com/shaiso/Runbooks/internal/telemetry"
)

// schedLockKey — ключ pg_advisory_lock для leader election.
const schedLockKey int64 = 424242

func main() {
	logger := telemetry.SetupLogger("runbook-scheduler")
	logger.Info("starting runbook-scheduler")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.UseMemory {
		logger.Error("runbook-scheduler requires PostgreSQL, unset STORE_MEMORY")
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

	sched, err := scheduler.New(scheduler.Config{
		Sweeper:  a.Orchestrator,
		Leader:   repo.NewLeaderLock(a.Pool, schedLockKey),
		Schedule: cfg.EscalationSchedule,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	addr := config.Addr(cfg.SchedPort)
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
	logger.Info("shutting down scheduler")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	sched.Stop(shutdownCtx)
	_ = server.Shutdown(shutdownCtx)

	logger.Info("scheduler stopped")
}

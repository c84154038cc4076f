package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/telemetry"
)

const defaultTimeout = 300 * time.Second

// TimeoutLookup — источник per-runbook таймаута (catalog.Catalog).
type TimeoutLookup interface {
	Get(name string) (*domain.Runbook, error)
}

// DispatcherConfig — конфигурация Dispatcher.
type DispatcherConfig struct {
	Registry *Registry

	// Catalog — для чтения Runbook.TimeoutSec (опционально).
	Catalog TimeoutLookup

	// DefaultTimeout — таймаут, если у runbook'а не задан свой (default: 300s).
	DefaultTimeout time.Duration

	Logger *slog.Logger
}

// Dispatcher выбирает реализацию по имени и вызывает её.
type Dispatcher struct {
	registry       *Registry
	catalog        TimeoutLookup
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Dispatcher{
		registry:       registry,
		catalog:        cfg.Catalog,
		defaultTimeout: timeout,
		logger:         logger,
	}
}

// Run вызывает runbook с таймаутом.
//
// Реализация работает в отдельной горутине: если она не уважает ctx,
// Run всё равно вернёт ErrRunnerTimeout по истечении таймаута.
// Паника реализации перехватывается и возвращается как ErrRunnerPanic.
func (d *Dispatcher) Run(ctx context.Context, executionID uuid.UUID, name string, dryRun bool, params map[string]any) (*domain.RunResult, error) {
	rb, err := d.registry.Get(name)
	if err != nil {
		return nil, err
	}

	timeout := d.timeoutFor(name)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := telemetry.WithRunbook(telemetry.WithExecutionID(d.logger, executionID.String()), name)
	logger.Debug("running runbook", "dry_run", dryRun, "timeout", timeout)

	type outcome struct {
		res *domain.RunResult
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("runbook panicked", "panic", r, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("%w: %v", ErrRunnerPanic, r)}
			}
		}()
		res, err := rb.Run(ctx, Request{
			ExecutionID: executionID,
			Runbook:     name,
			DryRun:      dryRun,
			Parameters:  params,
		})
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
		if out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			out.err = fmt.Errorf("%w after %s: %v", ErrRunnerTimeout, timeout, out.err)
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			out.err = fmt.Errorf("%w after %s", ErrRunnerTimeout, timeout)
		} else {
			out.err = ctx.Err()
		}
	}

	elapsed := time.Since(start)
	telemetry.ObserveRunner(name, elapsed)

	if out.err != nil {
		logger.Warn("runbook failed", "duration", elapsed, "error", out.err)
		return nil, out.err
	}
	if out.res == nil {
		out.res = &domain.RunResult{}
	}

	logger.Info("runbook finished",
		"duration", elapsed,
		"dry_run", dryRun,
		"items_found", out.res.ItemsFound,
		"items_actioned", out.res.ItemsActioned,
	)
	return out.res, nil
}

func (d *Dispatcher) timeoutFor(name string) time.Duration {
	if d.catalog == nil {
		return d.defaultTimeout
	}
	rb, err := d.catalog.Get(name)
	if err != nil || rb.TimeoutSec <= 0 {
		return d.defaultTimeout
	}
	return time.Duration(rb.TimeoutSec) * time.Second
}

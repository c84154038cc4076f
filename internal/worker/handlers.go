package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/mq"
	"github.com/shaiso/Runbooks/internal/orchestrator"
)

// handleExecutionQueued обрабатывает событие из очереди executions.queued.
func (w *Worker) handleExecutionQueued(ctx context.Context, msg *mq.Message) error {
	if msg.Type != mq.MessageTypeExecutionQueued {
		return fmt.Errorf("%w: %s: %w", ErrUnexpectedMessage, msg.Type, mq.ErrDiscard)
	}

	ev, err := mq.ParsePayload[domain.ExecutionEvent](msg)
	if err != nil {
		return fmt.Errorf("parse execution.queued payload: %w: %w", err, mq.ErrDiscard)
	}

	w.logger.Debug("received execution.queued event",
		"execution_id", ev.ExecutionID,
		"runbook", ev.RunbookName,
	)

	return w.process(ctx, ev.ExecutionID)
}

// process запускает execution.
//
// Stale и not found — ожидаемые ситуации (execution уже взят другим
// worker'ом или отменён), возвращается mq.ErrDiscard.
func (w *Worker) process(ctx context.Context, id uuid.UUID) error {
	exec, err := w.dispatchWithRetry(ctx, id)
	if err != nil {
		if errors.Is(err, orchestrator.ErrStaleExecutionState) || errors.Is(err, orchestrator.ErrExecutionNotFound) {
			w.logger.Debug("execution not dispatched", "execution_id", id, "reason", err)
			return fmt.Errorf("%w: %w", mq.ErrDiscard, err)
		}
		return err
	}

	w.logger.Info("execution dispatched",
		"execution_id", exec.ID,
		"runbook", exec.RunbookName,
		"status", exec.Status,
		"duration", exec.Duration(),
	)
	return nil
}

// dispatchWithRetry вызывает Dispatch, повторяя временные ошибки хранилища.
//
// Ошибка Runner'а не повторяется: execution уже в failed.
// Если переход в executing записался, а запись результата нет,
// повтор получит stale и остановится.
func (w *Worker) dispatchWithRetry(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		exec, err := w.dispatcher.Dispatch(ctx, id)
		if err == nil {
			return exec, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err

		if attempt == w.maxAttempts {
			break
		}

		backoff := calculateBackoff(attempt, w.baseBackoff, w.maxBackoff)
		w.logger.Warn("dispatch failed, retrying",
			"execution_id", id,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, orchestrator.ErrStaleExecutionState),
		errors.Is(err, orchestrator.ErrExecutionNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// calculateBackoff вычисляет задержку перед попыткой attempt+1:
// base * 2^(attempt-1), не больше maxDelay.
func calculateBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/catalog"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/repo"
	"github.com/shaiso/Runbooks/internal/telemetry"
)

// Dispatch запускает queued execution (async режим, вызывается worker'ом).
//
// Execution не в queued — ErrStaleExecutionState, Runner не вызывается.
// Два worker'а с одним execution'ом: Runner запустит только тот,
// чей переход в executing записался первым.
func (o *Orchestrator) Dispatch(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	exec, err := o.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.Status != domain.StatusQueued {
		return nil, fmt.Errorf("%w: execution is %s", ErrStaleExecutionState, exec.Status)
	}
	return o.execute(ctx, exec, ActorWorker)
}

// execute делает переход queued → executing, вызывает Runner
// и записывает терминальный статус.
func (o *Orchestrator) execute(ctx context.Context, exec *domain.Execution, actor string) (*domain.Execution, error) {
	logger := telemetry.WithRunbook(telemetry.WithExecutionID(o.logger, exec.ID.String()), exec.RunbookName)

	expected := exec.Version
	startTr, err := exec.MarkExecuting(actor, o.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaleExecutionState, err)
	}
	if err := o.save(ctx, exec, expected, domain.ExecutionChange{Transitions: []domain.Transition{startTr}}); err != nil {
		return nil, err
	}
	o.publish(ctx, domain.EventExecutionTransitioned, exec, &startTr)

	// С этого момента execution принадлежит нам. Отмена запроса не должна
	// оставить его в executing, поэтому дальше работаем без отмены.
	runCtx := context.WithoutCancel(ctx)

	res, runErr := o.runner.Run(runCtx, exec.ID, exec.RunbookName, exec.DryRun, o.runParams(exec))

	now := o.clock.Now()
	var endTr domain.Transition
	if runErr != nil {
		msg := fmt.Errorf("%w: %v", ErrRunnerFailure, runErr).Error()
		endTr, err = exec.MarkFailed(msg, actor, now)
	} else {
		if res == nil {
			res = &domain.RunResult{}
		}
		endTr, err = exec.MarkCompleted(*res, actor, now)
	}
	if err != nil {
		return nil, err
	}

	if runErr == nil {
		o.offloadResult(runCtx, exec)
	}

	if err := o.save(runCtx, exec, exec.Version, domain.ExecutionChange{Transitions: []domain.Transition{endTr}}); err != nil {
		logger.Error("failed to record execution result", "status", exec.Status, "error", err)
		return nil, err
	}

	telemetry.RecordFinished(exec.RunbookName, string(exec.Status))
	logger.Info("execution finished",
		"status", exec.Status,
		"actor", actor,
		"items_found", exec.ItemsFound,
		"items_actioned", exec.ItemsActioned,
		"error", exec.ErrorMessage,
	)
	o.publish(runCtx, domain.EventExecutionTransitioned, exec, &endTr)

	return exec, nil
}

// runParams приводит снимок параметров к типам схемы: после чтения
// из БД целые числа приходят как float64.
func (o *Orchestrator) runParams(exec *domain.Execution) map[string]any {
	rb, err := o.catalog.Get(exec.RunbookName)
	if err != nil {
		return exec.Parameters
	}
	params, err := catalog.ValidateParams(rb, exec.Parameters)
	if err != nil {
		return exec.Parameters
	}
	return params
}

// offloadResult выносит большой результат в object storage.
// При ошибке записи результат остаётся в execution'е.
func (o *Orchestrator) offloadResult(ctx context.Context, exec *domain.Execution) {
	if o.results == nil || exec.Result == nil {
		return
	}

	data, err := json.Marshal(exec.Result)
	if err != nil || len(data) <= o.offloadBytes {
		return
	}

	key := resultKey(exec.ID)
	if err := o.results.Put(ctx, key, data); err != nil {
		o.logger.Warn("failed to offload result, keeping inline",
			"execution_id", exec.ID,
			"size_bytes", len(data),
			"error", err,
		)
		return
	}

	exec.ResultRef = key
	exec.Result = nil
}

// save — Save с переводом ошибок хранилища в ошибки оркестратора.
func (o *Orchestrator) save(ctx context.Context, exec *domain.Execution, expected int, change domain.ExecutionChange) error {
	err := o.store.Save(ctx, exec, expected, change)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrStaleVersion):
		return fmt.Errorf("%w: execution %s was modified concurrently", ErrStaleExecutionState, exec.ID)
	case errors.Is(err, repo.ErrAlreadyExists):
		return ErrAlreadyDecided
	case errors.Is(err, repo.ErrNotFound):
		return ErrExecutionNotFound
	default:
		return fmt.Errorf("save execution: %w", err)
	}
}

// get — Get с переводом repo.ErrNotFound.
func (o *Orchestrator) get(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	exec, err := o.store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return exec, nil
}

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
)

// Runbooks возвращает каталог.
func (o *Orchestrator) Runbooks() []domain.Runbook {
	return o.catalog.List()
}

// Runbook возвращает runbook по имени.
func (o *Orchestrator) Runbook(name string) (*domain.Runbook, error) {
	rb, err := o.catalog.Get(name)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunbookUnavailable, name)
	}
	return rb, err
}

// Get возвращает execution.
func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	return o.get(ctx, id)
}

// Pending возвращает executions, ждущие решения, старые первыми.
// Обычная роль видит только то, что может одобрить; администратор — всё.
func (o *Orchestrator) Pending(ctx context.Context, caller domain.Caller) ([]domain.Execution, error) {
	role := caller.Role
	if role == o.adminRole {
		role = ""
	}
	list, err := o.store.ListPending(ctx, role, 0)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return list, nil
}

// History возвращает страницу истории и общее количество.
func (o *Orchestrator) History(ctx context.Context, filter domain.ExecutionFilter) ([]domain.Execution, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidParameters, filter.Status)
	}
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	list, total, err := o.store.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	return list, total, nil
}

// Mine — история executions, запущенных вызывающим.
func (o *Orchestrator) Mine(ctx context.Context, caller domain.Caller, filter domain.ExecutionFilter) ([]domain.Execution, int, error) {
	filter.TriggeredBy = caller.Principal
	return o.History(ctx, filter)
}

// Stats возвращает агрегаты по всем runbook'ам.
func (o *Orchestrator) Stats(ctx context.Context) ([]domain.ExecutionStats, error) {
	stats, err := o.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// Transitions возвращает журнал переходов execution'а.
func (o *Orchestrator) Transitions(ctx context.Context, id uuid.UUID) ([]domain.Transition, error) {
	list, err := o.store.Transitions(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return list, err
}

// Decisions возвращает голоса approver'ов.
func (o *Orchestrator) Decisions(ctx context.Context, id uuid.UUID) ([]domain.ApprovalDecision, error) {
	list, err := o.store.Decisions(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return list, err
}

// Result возвращает результат Runner'а, при необходимости из object storage.
func (o *Orchestrator) Result(ctx context.Context, id uuid.UUID) (map[string]any, error) {
	exec, err := o.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.ResultRef == "" {
		return exec.Result, nil
	}
	if o.results == nil {
		return nil, fmt.Errorf("%w: %s", ErrResultUnavailable, exec.ResultRef)
	}

	data, err := o.results.Get(ctx, exec.ResultRef)
	if err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}

// Policies возвращает политики runbook'а.
func (o *Orchestrator) Policies(ctx context.Context, runbookName string) ([]domain.ApprovalPolicy, error) {
	if _, err := o.Runbook(runbookName); err != nil {
		return nil, err
	}
	return o.policies.List(ctx, runbookName)
}

// PutPolicy — upsert политики. Только администратор.
func (o *Orchestrator) PutPolicy(ctx context.Context, caller domain.Caller, p *domain.ApprovalPolicy) (*domain.ApprovalPolicy, error) {
	if caller.Role != o.adminRole {
		return nil, fmt.Errorf("%w: only %s may edit policies", ErrForbidden, o.adminRole)
	}
	saved, err := o.policies.Put(ctx, p)
	if err != nil {
		return nil, err
	}
	o.logger.Info("policy saved", "runbook", p.RunbookName, "trigger_role", p.TriggerRole, "actor", caller.Principal)
	return saved, nil
}

// CreatePolicy добавляет политику. Только администратор.
func (o *Orchestrator) CreatePolicy(ctx context.Context, caller domain.Caller, p *domain.ApprovalPolicy) (*domain.ApprovalPolicy, error) {
	if caller.Role != o.adminRole {
		return nil, fmt.Errorf("%w: only %s may add policies", ErrForbidden, o.adminRole)
	}
	return o.policies.Create(ctx, p)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/catalog"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/policy"
	"github.com/shaiso/Runbooks/internal/repo"
	"github.com/shaiso/Runbooks/internal/telemetry"
)

// TriggerRequest — запрос на запуск runbook'а.
type TriggerRequest struct {
	RunbookName string
	DryRun      bool
	Parameters  map[string]any
}

// TriggerResult — итог Trigger.
type TriggerResult struct {
	Execution *domain.Execution

	// RateLimited — auto_approve запуск ушёл на ручное одобрение из-за лимита.
	RateLimited bool

	// Note — пояснение для вызывающего (не ошибка).
	Note string
}

// Trigger создаёт execution.
//
// Шаги:
//  1. runbook есть в каталоге и включён
//  2. параметры проходят схему runbook'а
//  3. dry-run поддерживается, если запрошен
//  4. есть политика для роли вызывающего (fail closed)
//  5. auto_approve в пределах лимита — queued и запуск Runner'а,
//     иначе pending_approval
//
// Ошибки шагов 1-4 возвращаются до создания execution'а.
// Ошибка Runner'а ошибкой Trigger не является: execution будет failed.
func (o *Orchestrator) Trigger(ctx context.Context, caller domain.Caller, req TriggerRequest) (*TriggerResult, error) {
	rb, err := o.catalog.Get(req.RunbookName)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunbookUnavailable, req.RunbookName)
		}
		return nil, fmt.Errorf("get runbook: %w", err)
	}
	if !rb.Enabled {
		return nil, fmt.Errorf("%w: %s is disabled", ErrRunbookUnavailable, rb.Name)
	}

	params, err := catalog.ValidateParams(rb, req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}

	if req.DryRun && !rb.SupportsDryRun {
		return nil, fmt.Errorf("%w: %s", ErrDryRunUnsupported, rb.Name)
	}

	pol, err := o.policies.Resolve(ctx, rb.Name, caller.Role)
	if err != nil {
		if errors.Is(err, policy.ErrNoMatchingPolicy) {
			return nil, fmt.Errorf("%w: role %q may not trigger %s", ErrForbidden, caller.Role, rb.Name)
		}
		return nil, fmt.Errorf("resolve policy: %w", err)
	}

	now := o.clock.Now()
	exec := &domain.Execution{
		ID:                       uuid.New(),
		RunbookName:              rb.Name,
		DryRun:                   req.DryRun,
		Parameters:               params,
		PolicyID:                 pol.ID,
		ApprovalMode:             pol.Mode,
		ApproverRole:             pol.ApproverRole,
		RequiredApprovals:        pol.Quorum(),
		EscalationTimeoutMinutes: pol.EscalationTimeoutMinutes,
		TriggeredBy:              caller.Principal,
		TriggeredRole:            caller.Role,
		TriggeredAt:              now,
	}

	logger := telemetry.WithRunbook(telemetry.WithExecutionID(o.logger, exec.ID.String()), rb.Name)
	result := &TriggerResult{Execution: exec}

	initial := domain.StatusPendingApproval
	note := "awaiting " + string(pol.Mode)

	if pol.Mode == domain.ApprovalAuto {
		allowed, err := o.limiter.Allow(ctx, rb.Name, pol.MaxAutoExecutionsPerDay)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if allowed {
			initial = domain.StatusQueued
			note = "auto-approved"
			exec.ApprovedBy = approvedByAuto
			exec.ApprovedAt = &now
		} else {
			exec.RateLimited = true
			result.RateLimited = true
			note = fmt.Sprintf("rate limited: %d auto executions per 24h reached, queued for manual approval",
				pol.MaxAutoExecutionsPerDay)
			telemetry.RecordRateLimited(rb.Name)
		}
	}

	tr, err := exec.Open(initial, caller.Principal, now, note)
	if err != nil {
		return nil, err
	}
	if err := o.store.Create(ctx, exec, domain.ExecutionChange{Transitions: []domain.Transition{tr}}); err != nil {
		// Засчитанный запуск не состоялся, слот возвращается в окно.
		if initial == domain.StatusQueued {
			if relErr := o.limiter.Release(context.WithoutCancel(ctx), rb.Name); relErr != nil {
				logger.Error("failed to release rate limit slot", "error", relErr)
			}
		}
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: duplicate execution id", ErrStaleExecutionState)
		}
		return nil, fmt.Errorf("create execution: %w", err)
	}

	telemetry.RecordTrigger(rb.Name, string(initial))
	logger.Info("execution triggered",
		"status", exec.Status,
		"actor", caller.Principal,
		"dry_run", exec.DryRun,
		"approval_mode", pol.Mode,
		"rate_limited", exec.RateLimited,
	)

	o.publish(ctx, domain.EventExecutionTransitioned, exec, &tr)
	if exec.RateLimited {
		result.Note = note
	}

	if exec.Status == domain.StatusPendingApproval {
		o.publish(ctx, domain.EventApprovalRequested, exec, &tr)
		return result, nil
	}

	finished, err := o.afterQueued(ctx, exec, caller.Principal)
	if err != nil {
		return nil, err
	}
	result.Execution = finished
	return result, nil
}

// afterQueued запускает Runner (sync) или отдаёт execution worker'у (async).
func (o *Orchestrator) afterQueued(ctx context.Context, exec *domain.Execution, actor string) (*domain.Execution, error) {
	if o.dispatchMode == DispatchAsync {
		o.publish(ctx, domain.EventExecutionQueued, exec, nil)
		return exec, nil
	}
	return o.execute(ctx, exec, actor)
}

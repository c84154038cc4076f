package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/telemetry"
)

// DecideRequest — решение approver'а.
type DecideRequest struct {
	ExecutionID uuid.UUID
	Decision    domain.Decision
	Comment     string
}

// Decide записывает решение approver'а.
//
// Правила:
//   - решать может только роль из снимка политики (approver_role)
//   - execution должен быть в pending_approval, иначе ErrStaleExecutionState
//   - один голос на approver'а (ErrAlreadyDecided)
//   - rejected сразу переводит в rejected (вето)
//   - approved переводит в queued, когда набран кворум различных approver'ов
//     (для single_approval кворум 1), затем запускается Runner
//
// Голос и переход пишутся одной записью с проверкой версии: два approver'а,
// голосующие одновременно, не могут оба увидеть "кворум не набран".
func (o *Orchestrator) Decide(ctx context.Context, caller domain.Caller, req DecideRequest) (*domain.Execution, error) {
	if !req.Decision.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, req.Decision)
	}

	exec, err := o.get(ctx, req.ExecutionID)
	if err != nil {
		return nil, err
	}

	if caller.Role != exec.ApproverRole {
		return nil, fmt.Errorf("%w: role %q may not decide, approver role is %q",
			ErrForbidden, caller.Role, exec.ApproverRole)
	}
	if exec.Status != domain.StatusPendingApproval {
		return nil, fmt.Errorf("%w: execution is %s", ErrStaleExecutionState, exec.Status)
	}

	// Голоса читаются после execution'а: если между чтениями кто-то
	// проголосует, версия уже не совпадёт и Save вернёт stale.
	votes, err := o.store.Decisions(ctx, exec.ID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}

	approvers := make([]string, 0, len(votes)+1)
	for _, v := range votes {
		if v.Approver == caller.Principal {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyDecided, caller.Principal)
		}
		if v.Decision == domain.DecisionApproved {
			approvers = append(approvers, v.Approver)
		}
	}

	now := o.clock.Now()
	decision := &domain.ApprovalDecision{
		ID:          uuid.New(),
		ExecutionID: exec.ID,
		Approver:    caller.Principal,
		Role:        caller.Role,
		Decision:    req.Decision,
		Comment:     req.Comment,
		At:          now,
	}

	expected := exec.Version
	var tr domain.Transition

	switch req.Decision {
	case domain.DecisionRejected:
		tr, err = exec.MarkRejected(caller.Principal, req.Comment, now)

	case domain.DecisionApproved:
		approvers = append(approvers, caller.Principal)
		quorum := exec.RequiredApprovals
		if quorum < 1 {
			quorum = 1
		}
		if len(approvers) >= quorum {
			tr, err = exec.MarkQueued(strings.Join(approvers, ","), req.Comment, now)
		} else {
			exec.DecisionComment = req.Comment
			tr = exec.Event(caller.Principal, now, fmt.Sprintf("approved %d/%d", len(approvers), quorum))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaleExecutionState, err)
	}

	change := domain.ExecutionChange{
		Transitions: []domain.Transition{tr},
		Decision:    decision,
	}
	if err := o.save(ctx, exec, expected, change); err != nil {
		return nil, err
	}

	telemetry.RecordDecision(string(req.Decision))
	o.logger.Info("decision recorded",
		"execution_id", exec.ID,
		"runbook", exec.RunbookName,
		"actor", caller.Principal,
		"decision", req.Decision,
		"status", exec.Status,
	)
	o.publish(ctx, domain.EventExecutionTransitioned, exec, &tr)

	switch exec.Status {
	case domain.StatusQueued:
		return o.afterQueued(ctx, exec, caller.Principal)
	case domain.StatusRejected:
		telemetry.RecordFinished(exec.RunbookName, string(exec.Status))
	}
	return exec, nil
}

// Cancel отменяет execution в pending_approval или queued.
//
// Отменить может инициатор, роль approver'а или администратор.
// Executing — ErrCannotCancelRunningExecution, терминальный статус
// или параллельный переход — ErrStaleExecutionState.
func (o *Orchestrator) Cancel(ctx context.Context, caller domain.Caller, id uuid.UUID) (*domain.Execution, error) {
	exec, err := o.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !o.canCancel(caller, exec) {
		return nil, fmt.Errorf("%w: %s may not cancel execution %s", ErrForbidden, caller, id)
	}

	switch {
	case exec.Status == domain.StatusExecuting:
		return nil, ErrCannotCancelRunningExecution
	case exec.Status.IsTerminal():
		return nil, fmt.Errorf("%w: execution is %s", ErrStaleExecutionState, exec.Status)
	}

	expected := exec.Version
	tr, err := exec.MarkCancelled(caller.Principal, o.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaleExecutionState, err)
	}
	if err := o.save(ctx, exec, expected, domain.ExecutionChange{Transitions: []domain.Transition{tr}}); err != nil {
		return nil, err
	}

	telemetry.RecordFinished(exec.RunbookName, string(exec.Status))
	o.logger.Info("execution cancelled",
		"execution_id", exec.ID,
		"runbook", exec.RunbookName,
		"actor", caller.Principal,
	)
	o.publish(ctx, domain.EventExecutionTransitioned, exec, &tr)

	return exec, nil
}

func (o *Orchestrator) canCancel(caller domain.Caller, exec *domain.Execution) bool {
	return caller.Principal == exec.TriggeredBy ||
		caller.Role == exec.ApproverRole ||
		caller.Role == o.adminRole
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Типы событий жизненного цикла execution'а.
const (
	// EventExecutionQueued — execution одобрен и ждёт Runner'а.
	EventExecutionQueued = "execution.queued"

	// EventExecutionTransitioned — любой переход статуса.
	EventExecutionTransitioned = "execution.transitioned"

	// EventApprovalRequested — execution ждёт решения approver'а.
	EventApprovalRequested = "approval.requested"

	// EventApprovalEscalated — одобрение просрочено.
	EventApprovalEscalated = "approval.escalated"
)

// ExecutionEvent — событие для внешних подписчиков (UI, нотификации, worker).
type ExecutionEvent struct {
	Type         string          `json:"type"`
	ExecutionID  uuid.UUID       `json:"execution_id"`
	RunbookName  string          `json:"runbook_name"`
	Status       ExecutionStatus `json:"status"`
	FromStatus   ExecutionStatus `json:"from_status,omitempty"`
	ApproverRole string          `json:"approver_role,omitempty"`
	DryRun       bool            `json:"dry_run"`
	Actor        string          `json:"actor,omitempty"`
	Note         string          `json:"note,omitempty"`
	At           time.Time       `json:"at"`
}

// NewExecutionEvent собирает событие по execution'у и (опционально) переходу.
func NewExecutionEvent(eventType string, e *Execution, tr *Transition) ExecutionEvent {
	ev := ExecutionEvent{
		Type:         eventType,
		ExecutionID:  e.ID,
		RunbookName:  e.RunbookName,
		Status:       e.Status,
		ApproverRole: e.ApproverRole,
		DryRun:       e.DryRun,
	}
	if tr != nil {
		ev.FromStatus = tr.From
		ev.Status = tr.To
		ev.Actor = tr.Actor
		ev.Note = tr.Note
		ev.At = tr.At
	}
	return ev
}

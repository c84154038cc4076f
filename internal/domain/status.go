package domain

import "errors"

// ErrInvalidTransition — переход не предусмотрен графом статусов.
var ErrInvalidTransition = errors.New("invalid status transition")

// ExecutionStatus — статус execution.
//
// Жизненный цикл:
//
//	pending_approval → queued → executing → completed
//	       │              │              ↘ failed
//	       ├→ rejected    └→ cancelled
//	       └→ cancelled
//
// Auto-approve путь начинается сразу с queued. Переходы только вперёд,
// из терминальных статусов выхода нет.
type ExecutionStatus string

const (
	// StatusPendingApproval — ждёт решения approver'а.
	StatusPendingApproval ExecutionStatus = "pending_approval"

	// StatusQueued — одобрен, ждёт Runner'а.
	StatusQueued ExecutionStatus = "queued"

	// StatusExecuting — Runner вызван.
	StatusExecuting ExecutionStatus = "executing"

	// StatusCompleted — Runner вернул результат без ошибки.
	StatusCompleted ExecutionStatus = "completed"

	// StatusFailed — Runner вернул ошибку (error_message заполнен).
	StatusFailed ExecutionStatus = "failed"

	// StatusRejected — отклонён approver'ом.
	StatusRejected ExecutionStatus = "rejected"

	// StatusCancelled — отменён до запуска.
	StatusCancelled ExecutionStatus = "cancelled"
)

// transitions — разрешённые переходы. Пустой статус — создание execution.
var transitions = map[ExecutionStatus][]ExecutionStatus{
	"":                    {StatusPendingApproval, StatusQueued},
	StatusPendingApproval: {StatusQueued, StatusRejected, StatusCancelled},
	StatusQueued:          {StatusExecuting, StatusCancelled},
	StatusExecuting:       {StatusCompleted, StatusFailed},
}

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус известен.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case StatusPendingApproval, StatusQueued, StatusExecuting,
		StatusCompleted, StatusFailed, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition проверяет, разрешён ли переход from → to.
func CanTransition(from, to ExecutionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllStatuses возвращает все статусы в порядке жизненного цикла.
func AllStatuses() []ExecutionStatus {
	return []ExecutionStatus{
		StatusPendingApproval, StatusQueued, StatusExecuting,
		StatusCompleted, StatusFailed, StatusRejected, StatusCancelled,
	}
}

// Decision — решение approver'а.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// IsValid проверяет, что решение известно.
func (d Decision) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

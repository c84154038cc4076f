package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Execution — одна попытка запуска runbook'а.
//
// Execution создаётся в Trigger и дальше меняется только переходами
// по графу статусов. Каждый переход фиксируется в журнале (Transition).
// Parameters — снимок провалидированных параметров, после создания не меняется.
type Execution struct {
	// ID — идентификатор, генерируется при Trigger.
	ID uuid.UUID `json:"execution_id"`

	// RunbookName — какой runbook запускается.
	RunbookName string `json:"runbook_name"`

	// Status — текущий статус.
	Status ExecutionStatus `json:"status"`

	// Version — счётчик для optimistic concurrency, растёт при каждой записи.
	Version int `json:"version"`

	// DryRun — режим без побочных эффектов.
	DryRun bool `json:"dry_run"`

	// Parameters — снимок параметров после валидации и подстановки default'ов.
	Parameters map[string]any `json:"parameters"`

	// --- Снимок политики на момент Trigger ---

	// PolicyID — политика, по которой принят Trigger.
	PolicyID uuid.UUID `json:"policy_id"`

	// ApprovalMode — режим одобрения из политики.
	ApprovalMode ApprovalMode `json:"approval_mode"`

	// ApproverRole — кто вправе принимать решения.
	ApproverRole string `json:"approver_role"`

	// RequiredApprovals — кворум одобрений.
	RequiredApprovals int `json:"required_approvals"`

	// EscalationTimeoutMinutes — таймаут эскалации из политики.
	EscalationTimeoutMinutes int `json:"escalation_timeout_minutes"`

	// RateLimited — auto_approve запуск ушёл на одобрение из-за rate limit.
	RateLimited bool `json:"rate_limited,omitempty"`

	// --- Кто и когда ---

	TriggeredBy   string     `json:"triggered_by"`
	TriggeredRole string     `json:"triggered_role"`
	TriggeredAt   time.Time  `json:"triggered_at"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	CancelledBy   string     `json:"cancelled_by,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	// EscalatedAt — отметка о просроченном одобрении (не статус).
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`

	// DecisionComment — комментарий последнего решения.
	DecisionComment string `json:"decision_comment,omitempty"`

	// --- Результат ---

	ErrorMessage  string `json:"error_message,omitempty"`
	ItemsFound    int    `json:"items_found"`
	ItemsActioned int    `json:"items_actioned"`

	// Result — непрозрачный payload Runner'а, форма определяется runbook'ом.
	Result map[string]any `json:"result,omitempty"`

	// ResultRef — ключ в object storage, если результат вынесен из БД.
	ResultRef string `json:"result_ref,omitempty"`
}

// Transition — запись журнала о смене статуса.
//
// From пустой — создание execution. From == To — событие без смены статуса
// (например, эскалация или голос в multi_approval).
type Transition struct {
	ID          uuid.UUID       `json:"id"`
	ExecutionID uuid.UUID       `json:"execution_id"`
	From        ExecutionStatus `json:"from_status"`
	To          ExecutionStatus `json:"to_status"`
	Actor       string          `json:"actor"`
	At          time.Time       `json:"at"`
	Note        string          `json:"note,omitempty"`
}

// ApprovalDecision — голос одного approver'а. Один голос на approver'а.
type ApprovalDecision struct {
	ID          uuid.UUID `json:"id"`
	ExecutionID uuid.UUID `json:"execution_id"`
	Approver    string    `json:"approver"`
	Role        string    `json:"role"`
	Decision    Decision  `json:"decision"`
	Comment     string    `json:"comment,omitempty"`
	At          time.Time `json:"at"`
}

// RunResult — то, что возвращает Runner.
type RunResult struct {
	ItemsFound    int            `json:"items_found"`
	ItemsActioned int            `json:"items_actioned"`
	Result        map[string]any `json:"result,omitempty"`
}

// IsFinished возвращает true, если execution в терминальном статусе.
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// Duration возвращает время работы Runner'а.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(*e.StartedAt)
}

// IsOverdue проверяет, просрочено ли одобрение на момент now.
func (e *Execution) IsOverdue(now time.Time) bool {
	if e.Status != StatusPendingApproval || e.EscalationTimeoutMinutes <= 0 {
		return false
	}
	deadline := e.TriggeredAt.Add(time.Duration(e.EscalationTimeoutMinutes) * time.Minute)
	return now.After(deadline)
}

// Clone возвращает копию, которую можно менять без влияния на оригинал.
func (e *Execution) Clone() *Execution {
	c := *e
	c.Parameters = cloneMap(e.Parameters)
	c.Result = cloneMap(e.Result)
	c.ApprovedAt = cloneTime(e.ApprovedAt)
	c.StartedAt = cloneTime(e.StartedAt)
	c.CompletedAt = cloneTime(e.CompletedAt)
	c.EscalatedAt = cloneTime(e.EscalatedAt)
	return &c
}

// transition меняет статус, проверяя граф, и возвращает запись журнала.
func (e *Execution) transition(to ExecutionStatus, actor string, at time.Time, note string) (Transition, error) {
	from := e.Status
	if !CanTransition(from, to) {
		return Transition{}, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	e.Status = to
	return Transition{
		ID:          uuid.New(),
		ExecutionID: e.ID,
		From:        from,
		To:          to,
		Actor:       actor,
		At:          at,
		Note:        note,
	}, nil
}

// Open переводит новый execution в начальный статус (pending_approval или queued).
func (e *Execution) Open(status ExecutionStatus, actor string, at time.Time, note string) (Transition, error) {
	if e.Status != "" {
		return Transition{}, fmt.Errorf("%w: execution already opened", ErrInvalidTransition)
	}
	return e.transition(status, actor, at, note)
}

// MarkQueued — одобрение получено (pending_approval → queued).
// Для auto-approve пути используется Open(StatusQueued, ...).
func (e *Execution) MarkQueued(approver, comment string, at time.Time) (Transition, error) {
	tr, err := e.transition(StatusQueued, approver, at, "approved")
	if err != nil {
		return tr, err
	}
	e.ApprovedBy = approver
	e.ApprovedAt = &at
	e.DecisionComment = comment
	return tr, nil
}

// MarkRejected — отклонён (pending_approval → rejected).
func (e *Execution) MarkRejected(approver, comment string, at time.Time) (Transition, error) {
	tr, err := e.transition(StatusRejected, approver, at, "rejected")
	if err != nil {
		return tr, err
	}
	e.DecisionComment = comment
	e.CompletedAt = &at
	return tr, nil
}

// MarkCancelled — отменён (pending_approval|queued → cancelled).
func (e *Execution) MarkCancelled(actor string, at time.Time) (Transition, error) {
	tr, err := e.transition(StatusCancelled, actor, at, "cancelled")
	if err != nil {
		return tr, err
	}
	e.CancelledBy = actor
	e.CompletedAt = &at
	return tr, nil
}

// MarkExecuting — Runner запускается (queued → executing).
func (e *Execution) MarkExecuting(actor string, at time.Time) (Transition, error) {
	tr, err := e.transition(StatusExecuting, actor, at, "")
	if err != nil {
		return tr, err
	}
	e.StartedAt = &at
	return tr, nil
}

// MarkCompleted — Runner завершился успешно (executing → completed).
func (e *Execution) MarkCompleted(res RunResult, actor string, at time.Time) (Transition, error) {
	tr, err := e.transition(StatusCompleted, actor, at, "")
	if err != nil {
		return tr, err
	}
	e.ItemsFound = res.ItemsFound
	e.ItemsActioned = res.ItemsActioned
	e.Result = res.Result
	e.CompletedAt = &at
	return tr, nil
}

// MarkFailed — Runner вернул ошибку (executing → failed).
func (e *Execution) MarkFailed(errMsg string, actor string, at time.Time) (Transition, error) {
	tr, err := e.transition(StatusFailed, actor, at, errMsg)
	if err != nil {
		return tr, err
	}
	e.ErrorMessage = errMsg
	e.CompletedAt = &at
	return tr, nil
}

// Event возвращает запись журнала без смены статуса.
func (e *Execution) Event(actor string, at time.Time, note string) Transition {
	return Transition{
		ID:          uuid.New(),
		ExecutionID: e.ID,
		From:        e.Status,
		To:          e.Status,
		Actor:       actor,
		At:          at,
		Note:        note,
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// ExecutionChange — то, что записывается вместе с новым состоянием execution.
// Запись атомарна: либо всё, либо ничего.
type ExecutionChange struct {
	Transitions []Transition
	Decision    *ApprovalDecision
}

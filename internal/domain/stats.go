package domain

import "time"

// ExecutionStats — агрегаты по одному runbook'у.
//
// Считаются из журнала executions на каждый запрос и нигде отдельно не хранятся.
type ExecutionStats struct {
	RunbookName        string     `json:"runbook_name"`
	Total              int        `json:"total"`
	Completed          int        `json:"completed"`
	Failed             int        `json:"failed"`
	Pending            int        `json:"pending"`
	Rejected           int        `json:"rejected"`
	TotalItemsFound    int        `json:"total_items_found"`
	TotalItemsActioned int        `json:"total_items_actioned"`
	LastRun            *time.Time `json:"last_run,omitempty"`
}

// Add учитывает execution в агрегатах.
func (s *ExecutionStats) Add(e *Execution) {
	s.Total++
	switch e.Status {
	case StatusCompleted:
		s.Completed++
	case StatusFailed:
		s.Failed++
	case StatusPendingApproval:
		s.Pending++
	case StatusRejected:
		s.Rejected++
	}
	s.TotalItemsFound += e.ItemsFound
	s.TotalItemsActioned += e.ItemsActioned
	if s.LastRun == nil || e.TriggeredAt.After(*s.LastRun) {
		t := e.TriggeredAt
		s.LastRun = &t
	}
}

// ExecutionFilter — параметры выборки истории.
type ExecutionFilter struct {
	RunbookName string
	Status      ExecutionStatus
	TriggeredBy string
	Limit       int
	Offset      int
}

// Caller — кто выполняет операцию.
type Caller struct {
	// Principal — идентификатор пользователя (actor в журнале).
	Principal string `json:"principal"`

	// Role — роль, по которой резолвится политика.
	Role string `json:"role"`
}

// String возвращает "principal (role)" для логов и журнала.
func (c Caller) String() string {
	if c.Role == "" {
		return c.Principal
	}
	return c.Principal + " (" + c.Role + ")"
}

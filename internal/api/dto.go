package api

import (
	"time"

	"github.com/shaiso/Runbooks/internal/domain"
)

// Runbook DTOs

// RunbookResponse — запись каталога.
type RunbookResponse struct {
	domain.Runbook
}

// RunbookFromDomain конвертирует domain.Runbook в RunbookResponse.
func RunbookFromDomain(rb domain.Runbook) RunbookResponse {
	return RunbookResponse{Runbook: rb}
}

// RunbooksFromDomain конвертирует список runbook'ов.
func RunbooksFromDomain(list []domain.Runbook) []RunbookResponse {
	result := make([]RunbookResponse, len(list))
	for i, rb := range list {
		result[i] = RunbookFromDomain(rb)
	}
	return result
}

// Execution DTOs

// TriggerRequest — запрос на запуск runbook'а.
type TriggerRequest struct {
	DryRun     bool           `json:"dry_run"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ExecutionResponse — execution с вычисляемыми полями.
type ExecutionResponse struct {
	domain.Execution

	// Escalated — одобрение просрочено и отмечено эскалацией.
	Escalated bool `json:"escalated"`

	// DurationMs — время работы Runner'а.
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		Execution:  e,
		Escalated:  e.EscalatedAt != nil,
		DurationMs: e.Duration().Milliseconds(),
	}
}

// ExecutionsFromDomain конвертирует список executions.
func ExecutionsFromDomain(list []domain.Execution) []ExecutionResponse {
	result := make([]ExecutionResponse, len(list))
	for i, e := range list {
		result[i] = ExecutionFromDomain(e)
	}
	return result
}

// TriggerResponse — ответ на запуск.
type TriggerResponse struct {
	ExecutionResponse

	// RateLimited — auto_approve запуск ушёл на ручное одобрение.
	RateLimited bool `json:"rate_limited"`

	// Note — пояснение для вызывающего.
	Note string `json:"note,omitempty"`
}

// ResultResponse — результат Runner'а.
type ResultResponse struct {
	ExecutionID   string                 `json:"execution_id"`
	Status        domain.ExecutionStatus `json:"status"`
	ItemsFound    int                    `json:"items_found"`
	ItemsActioned int                    `json:"items_actioned"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	Result        map[string]any         `json:"result,omitempty"`
}

// Approval DTOs

// DecisionRequest — решение approver'а.
type DecisionRequest struct {
	Decision domain.Decision `json:"decision"`
	Comment  string          `json:"comment,omitempty"`
}

// Policy DTOs

// PolicyRequest — создание или замена политики.
type PolicyRequest struct {
	TriggerRole              string              `json:"trigger_role"`
	ApproverRole             string              `json:"approver_role"`
	Mode                     domain.ApprovalMode `json:"approval_mode"`
	RequiredApprovals        int                 `json:"required_approvals,omitempty"`
	EscalationTimeoutMinutes int                 `json:"escalation_timeout_minutes"`
	MaxAutoExecutionsPerDay  int                 `json:"max_auto_executions_per_day"`

	// Enabled — nil означает true.
	Enabled *bool `json:"enabled,omitempty"`
}

// ToDomain собирает domain.ApprovalPolicy для runbook'а.
func (r PolicyRequest) ToDomain(runbookName string) *domain.ApprovalPolicy {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &domain.ApprovalPolicy{
		RunbookName:              runbookName,
		TriggerRole:              r.TriggerRole,
		ApproverRole:             r.ApproverRole,
		Mode:                     r.Mode,
		RequiredApprovals:        r.RequiredApprovals,
		EscalationTimeoutMinutes: r.EscalationTimeoutMinutes,
		MaxAutoExecutionsPerDay:  r.MaxAutoExecutionsPerDay,
		Enabled:                  enabled,
	}
}

// Stats DTOs

// StatsResponse — агрегаты по runbook'ам.
type StatsResponse struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Runbooks    []domain.ExecutionStats `json:"runbooks"`
}

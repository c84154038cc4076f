package domain

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalMode — режим одобрения, задаётся политикой.
type ApprovalMode string

const (
	// ApprovalAuto — запуск без участия человека (с учётом rate limit).
	ApprovalAuto ApprovalMode = "auto_approve"

	// ApprovalSingle — достаточно одного решения approver'а.
	ApprovalSingle ApprovalMode = "single_approval"

	// ApprovalMulti — нужен кворум различных approver'ов, любой reject — вето.
	ApprovalMulti ApprovalMode = "multi_approval"
)

// DefaultMultiApprovals — кворум для multi_approval, если в политике не задан.
const DefaultMultiApprovals = 2

// IsValid проверяет, что режим известен.
func (m ApprovalMode) IsValid() bool {
	switch m {
	case ApprovalAuto, ApprovalSingle, ApprovalMulti:
		return true
	default:
		return false
	}
}

// ApprovalPolicy — правило "кто может запустить → кто одобряет и как".
//
// Для одного runbook'а может быть несколько политик с разными TriggerRole.
// Пара (RunbookName, TriggerRole) уникальна.
type ApprovalPolicy struct {
	// ID — идентификатор политики.
	ID uuid.UUID `json:"policy_id" yaml:"-"`

	// RunbookName — ссылка на runbook каталога.
	RunbookName string `json:"runbook_name" yaml:"runbook_name"`

	// TriggerRole — роль, которой разрешён Trigger.
	TriggerRole string `json:"trigger_role" yaml:"trigger_role"`

	// ApproverRole — роль, которая принимает решения.
	ApproverRole string `json:"approver_role" yaml:"approver_role"`

	// Mode — auto_approve, single_approval или multi_approval.
	Mode ApprovalMode `json:"approval_mode" yaml:"approval_mode"`

	// RequiredApprovals — кворум для multi_approval (0 — DefaultMultiApprovals).
	RequiredApprovals int `json:"required_approvals,omitempty" yaml:"required_approvals"`

	// EscalationTimeoutMinutes — через сколько минут pending approval считается просроченным.
	// 0 — эскалация выключена.
	EscalationTimeoutMinutes int `json:"escalation_timeout_minutes" yaml:"escalation_timeout_minutes"`

	// MaxAutoExecutionsPerDay — лимит auto_approve запусков за скользящие 24 часа.
	// 0 — автозапуск запрещён, всё уходит на одобрение.
	MaxAutoExecutionsPerDay int `json:"max_auto_executions_per_day" yaml:"max_auto_executions_per_day"`

	// Enabled — выключенная политика не участвует в Resolve.
	Enabled bool `json:"enabled" yaml:"enabled"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Quorum возвращает количество одобрений, после которого execution уходит в queued.
func (p *ApprovalPolicy) Quorum() int {
	switch p.Mode {
	case ApprovalMulti:
		if p.RequiredApprovals > 0 {
			return p.RequiredApprovals
		}
		return DefaultMultiApprovals
	default:
		return 1
	}
}

// EscalationTimeout возвращает таймаут эскалации как Duration.
func (p *ApprovalPolicy) EscalationTimeout() time.Duration {
	return time.Duration(p.EscalationTimeoutMinutes) * time.Minute
}

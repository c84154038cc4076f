package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Runbooks/internal/domain"
)

const policyColumns = `
	id, runbook_name, trigger_role, approver_role, approval_mode,
	required_approvals, escalation_timeout_minutes, max_auto_executions_per_day,
	enabled, created_at, updated_at`

// PolicyRepo — репозиторий политик одобрения.
//
// Пара (runbook_name, trigger_role) уникальна на уровне схемы,
// поэтому два параллельных Insert не могут создать неоднозначность.
type PolicyRepo struct {
	pool *pgxpool.Pool
}

// NewPolicyRepo создаёт новый PolicyRepo.
func NewPolicyRepo(pool *pgxpool.Pool) *PolicyRepo {
	return &PolicyRepo{pool: pool}
}

// Insert добавляет политику. Конфликт ключа — ErrAlreadyExists.
func (r *PolicyRepo) Insert(ctx context.Context, p *domain.ApprovalPolicy) error {
	query := `
		INSERT INTO approval_policies (` + policyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.RunbookName,
		p.TriggerRole,
		p.ApproverRole,
		p.Mode,
		p.RequiredApprovals,
		p.EscalationTimeoutMinutes,
		p.MaxAutoExecutionsPerDay,
		p.Enabled,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

// Update обновляет политику по ключу (runbook_name, trigger_role).
func (r *PolicyRepo) Update(ctx context.Context, p *domain.ApprovalPolicy) error {
	query := `
		UPDATE approval_policies
		SET approver_role = $3, approval_mode = $4, required_approvals = $5,
		    escalation_timeout_minutes = $6, max_auto_executions_per_day = $7,
		    enabled = $8, updated_at = $9
		WHERE runbook_name = $1 AND trigger_role = $2
	`
	tag, err := r.pool.Exec(ctx, query,
		p.RunbookName,
		p.TriggerRole,
		p.ApproverRole,
		p.Mode,
		p.RequiredApprovals,
		p.EscalationTimeoutMinutes,
		p.MaxAutoExecutionsPerDay,
		p.Enabled,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByTrigger возвращает политику по (runbook_name, trigger_role).
func (r *PolicyRepo) GetByTrigger(ctx context.Context, runbookName, triggerRole string) (*domain.ApprovalPolicy, error) {
	query := `
		SELECT ` + policyColumns + `
		FROM approval_policies
		WHERE runbook_name = $1 AND trigger_role = $2
	`
	return scanPolicy(r.pool.QueryRow(ctx, query, runbookName, triggerRole))
}

// ListByRunbook возвращает политики runbook'а, отсортированные по trigger_role.
func (r *PolicyRepo) ListByRunbook(ctx context.Context, runbookName string) ([]domain.ApprovalPolicy, error) {
	query := `
		SELECT ` + policyColumns + `
		FROM approval_policies
		WHERE runbook_name = $1
		ORDER BY trigger_role
	`
	rows, err := r.pool.Query(ctx, query, runbookName)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var list []domain.ApprovalPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

func scanPolicy(row pgx.Row) (*domain.ApprovalPolicy, error) {
	var p domain.ApprovalPolicy
	err := row.Scan(
		&p.ID,
		&p.RunbookName,
		&p.TriggerRole,
		&p.ApproverRole,
		&p.Mode,
		&p.RequiredApprovals,
		&p.EscalationTimeoutMinutes,
		&p.MaxAutoExecutionsPerDay,
		&p.Enabled,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	return &p, nil
}

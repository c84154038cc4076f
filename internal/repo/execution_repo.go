package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Runbooks/internal/domain"
)

const executionColumns = `
	id, runbook_name, status, version, dry_run, parameters,
	policy_id, approval_mode, approver_role, required_approvals,
	escalation_timeout_minutes, rate_limited,
	triggered_by, triggered_role, triggered_at,
	approved_by, approved_at, cancelled_by, started_at, completed_at,
	escalated_at, decision_comment, error_message,
	items_found, items_actioned, result, result_ref`

// ExecutionRepo — executions, журнал переходов и голоса approver'ов.
//
// Save — единственная точка изменения execution'а: UPDATE с проверкой
// версии, переходы и голос пишутся в той же транзакции.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// Create сохраняет новый execution с версией 1 и первым переходом.
func (r *ExecutionRepo) Create(ctx context.Context, e *domain.Execution, ch domain.ExecutionChange) error {
	params, result, err := marshalPayloads(e)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, 1, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`
	_, err = tx.Exec(ctx, query,
		e.ID,
		e.RunbookName,
		e.Status,
		e.DryRun,
		params,
		nullUUID(e.PolicyID),
		e.ApprovalMode,
		e.ApproverRole,
		e.RequiredApprovals,
		e.EscalationTimeoutMinutes,
		e.RateLimited,
		e.TriggeredBy,
		e.TriggeredRole,
		e.TriggeredAt,
		nullString(e.ApprovedBy),
		e.ApprovedAt,
		nullString(e.CancelledBy),
		e.StartedAt,
		e.CompletedAt,
		e.EscalatedAt,
		nullString(e.DecisionComment),
		nullString(e.ErrorMessage),
		e.ItemsFound,
		e.ItemsActioned,
		result,
		nullString(e.ResultRef),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert execution: %w", err)
	}

	if err := insertChange(ctx, tx, ch); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	e.Version = 1
	return nil
}

// Get возвращает execution по ID.
func (r *ExecutionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, id))
}

// Save записывает новое состояние, если версия в БД равна expectedVersion.
//
// Версия не совпала — ErrStaleVersion, повторный голос approver'а —
// ErrAlreadyExists. В обоих случаях транзакция откатывается целиком.
// escalated_at не перезаписывается: им управляет MarkEscalated.
func (r *ExecutionRepo) Save(ctx context.Context, e *domain.Execution, expectedVersion int, ch domain.ExecutionChange) error {
	_, result, err := marshalPayloads(e)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE executions
		SET status = $3, version = version + 1,
		    approved_by = $4, approved_at = $5, cancelled_by = $6,
		    started_at = $7, completed_at = $8, decision_comment = $9,
		    error_message = $10, items_found = $11, items_actioned = $12,
		    result = $13, result_ref = $14
		WHERE id = $1 AND version = $2
	`
	tag, err := tx.Exec(ctx, query,
		e.ID,
		expectedVersion,
		e.Status,
		nullString(e.ApprovedBy),
		e.ApprovedAt,
		nullString(e.CancelledBy),
		e.StartedAt,
		e.CompletedAt,
		nullString(e.DecisionComment),
		nullString(e.ErrorMessage),
		e.ItemsFound,
		e.ItemsActioned,
		result,
		nullString(e.ResultRef),
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStaleVersion
	}

	if err := insertChange(ctx, tx, ch); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	e.Version = expectedVersion + 1
	return nil
}

// MarkEscalated ставит escalated_at, если execution ещё ждёт одобрения
// и не был эскалирован. Возвращает false, если ничего не изменилось.
func (r *ExecutionRepo) MarkEscalated(ctx context.Context, id uuid.UUID, at time.Time, tr domain.Transition) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE executions
		SET escalated_at = $2
		WHERE id = $1 AND status = 'pending_approval' AND escalated_at IS NULL
	`
	tag, err := tx.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("mark escalated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, tx, id)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, nil
	}

	if err := insertTransition(ctx, tx, tr); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ListPending возвращает executions в pending_approval, старые первыми.
// approverRole == "" — без фильтра по роли. limit <= 0 — без ограничения.
func (r *ExecutionRepo) ListPending(ctx context.Context, approverRole string, limit int) ([]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status = 'pending_approval'
		  AND ($1::text IS NULL OR approver_role = $1)
		ORDER BY triggered_at ASC
		LIMIT $2
	`
	return r.query(ctx, "list pending executions", query, nullString(approverRole), nullLimit(limit))
}

// ListQueued возвращает executions в queued, поставленные не позже before.
func (r *ExecutionRepo) ListQueued(ctx context.Context, before time.Time, limit int) ([]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status = 'queued' AND triggered_at <= $1
		ORDER BY triggered_at ASC
		LIMIT $2
	`
	return r.query(ctx, "list queued executions", query, before, nullLimit(limit))
}

// ListOverdue возвращает неэскалированные executions в pending_approval,
// чей таймаут эскалации истёк к now. Старые первыми.
func (r *ExecutionRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status = 'pending_approval'
		  AND escalated_at IS NULL
		  AND escalation_timeout_minutes > 0
		  AND triggered_at + escalation_timeout_minutes * interval '1 minute' < $1
		ORDER BY triggered_at ASC
		LIMIT $2
	`
	return r.query(ctx, "list overdue executions", query, now, nullLimit(limit))
}

// List возвращает страницу истории (новые первыми) и общее количество.
func (r *ExecutionRepo) List(ctx context.Context, f domain.ExecutionFilter) ([]domain.Execution, int, error) {
	where := `
		WHERE ($1::text IS NULL OR runbook_name = $1)
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3::text IS NULL OR triggered_by = $3)
	`
	args := []any{
		nullString(f.RunbookName),
		nullString(string(f.Status)),
		nullString(f.TriggeredBy),
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM executions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	query := `
		SELECT ` + executionColumns + `
		FROM executions` + where + `
		ORDER BY triggered_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`
	list, err := r.query(ctx, "list executions", query, append(args, nullLimit(f.Limit), f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Transitions возвращает журнал переходов execution'а в порядке записи.
func (r *ExecutionRepo) Transitions(ctx context.Context, id uuid.UUID) ([]domain.Transition, error) {
	if ok, err := r.exists(ctx, r.pool, id); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, execution_id, from_status, to_status, actor, at, note
		FROM execution_transitions
		WHERE execution_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	list := []domain.Transition{}
	for rows.Next() {
		var tr domain.Transition
		var note *string
		if err := rows.Scan(&tr.ID, &tr.ExecutionID, &tr.From, &tr.To, &tr.Actor, &tr.At, &note); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Note = derefString(note)
		list = append(list, tr)
	}
	return list, rows.Err()
}

// Decisions возвращает голоса по execution'у в порядке записи.
func (r *ExecutionRepo) Decisions(ctx context.Context, id uuid.UUID) ([]domain.ApprovalDecision, error) {
	if ok, err := r.exists(ctx, r.pool, id); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, execution_id, approver, role, decision, comment, at
		FROM approval_decisions
		WHERE execution_id = $1
		ORDER BY at ASC, approver ASC
	`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	list := []domain.ApprovalDecision{}
	for rows.Next() {
		var d domain.ApprovalDecision
		var comment *string
		if err := rows.Scan(&d.ID, &d.ExecutionID, &d.Approver, &d.Role, &d.Decision, &comment, &d.At); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Comment = derefString(comment)
		list = append(list, d)
	}
	return list, rows.Err()
}

// Stats считает агрегаты по runbook'ам одним запросом.
func (r *ExecutionRepo) Stats(ctx context.Context) ([]domain.ExecutionStats, error) {
	query := `
		SELECT runbook_name,
		       count(*),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'failed'),
		       count(*) FILTER (WHERE status = 'pending_approval'),
		       count(*) FILTER (WHERE status = 'rejected'),
		       coalesce(sum(items_found), 0),
		       coalesce(sum(items_actioned), 0),
		       max(triggered_at)
		FROM executions
		GROUP BY runbook_name
		ORDER BY runbook_name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	list := []domain.ExecutionStats{}
	for rows.Next() {
		var s domain.ExecutionStats
		if err := rows.Scan(
			&s.RunbookName,
			&s.Total,
			&s.Completed,
			&s.Failed,
			&s.Pending,
			&s.Rejected,
			&s.TotalItemsFound,
			&s.TotalItemsActioned,
			&s.LastRun,
		); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// --- Helpers ---

// querier — общий интерфейс пула и транзакции.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *ExecutionRepo) exists(ctx context.Context, q querier, id uuid.UUID) (bool, error) {
	var ok bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("check execution: %w", err)
	}
	return ok, nil
}

func (r *ExecutionRepo) query(ctx context.Context, op, query string, args ...any) ([]domain.Execution, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	list := []domain.Execution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// insertChange пишет переходы и голос в транзакции.
func insertChange(ctx context.Context, tx pgx.Tx, ch domain.ExecutionChange) error {
	for _, tr := range ch.Transitions {
		if err := insertTransition(ctx, tx, tr); err != nil {
			return err
		}
	}
	if d := ch.Decision; d != nil {
		query := `
			INSERT INTO approval_decisions (id, execution_id, approver, role, decision, comment, at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err := tx.Exec(ctx, query, d.ID, d.ExecutionID, d.Approver, d.Role, d.Decision, nullString(d.Comment), d.At)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("insert decision: %w", err)
		}
	}
	return nil
}

func insertTransition(ctx context.Context, tx pgx.Tx, tr domain.Transition) error {
	query := `
		INSERT INTO execution_transitions (id, execution_id, from_status, to_status, actor, at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.Exec(ctx, query, tr.ID, tr.ExecutionID, tr.From, tr.To, tr.Actor, tr.At, nullString(tr.Note))
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func marshalPayloads(e *domain.Execution) (params, result []byte, err error) {
	params, err = json.Marshal(e.Parameters)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal parameters: %w", err)
	}
	if e.Result != nil {
		result, err = json.Marshal(e.Result)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal result: %w", err)
		}
	}
	return params, result, nil
}

// scanExecution сканирует одну строку в Execution.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var e domain.Execution
	var paramsJSON, resultJSON []byte
	var policyID *uuid.UUID
	var approvedBy, cancelledBy, comment, errMsg, resultRef *string

	err := row.Scan(
		&e.ID,
		&e.RunbookName,
		&e.Status,
		&e.Version,
		&e.DryRun,
		&paramsJSON,
		&policyID,
		&e.ApprovalMode,
		&e.ApproverRole,
		&e.RequiredApprovals,
		&e.EscalationTimeoutMinutes,
		&e.RateLimited,
		&e.TriggeredBy,
		&e.TriggeredRole,
		&e.TriggeredAt,
		&approvedBy,
		&e.ApprovedAt,
		&cancelledBy,
		&e.StartedAt,
		&e.CompletedAt,
		&e.EscalatedAt,
		&comment,
		&errMsg,
		&e.ItemsFound,
		&e.ItemsActioned,
		&resultJSON,
		&resultRef,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &e.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &e.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if policyID != nil {
		e.PolicyID = *policyID
	}
	e.ApprovedBy = derefString(approvedBy)
	e.CancelledBy = derefString(cancelledBy)
	e.DecisionComment = derefString(comment)
	e.ErrorMessage = derefString(errMsg)
	e.ResultRef = derefString(resultRef)

	return &e, nil
}

// nullLimit — NULL в LIMIT означает "без ограничения".
func nullLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Runbooks/internal/domain"
)

// RunbookRepo — копия каталога в БД.
//
// Источник истины — seed-файл. Таблица нужна для внешних отчётов
// и внешних ключей в аналитике, оркестратор её не читает.
type RunbookRepo struct {
	pool *pgxpool.Pool
}

// NewRunbookRepo создаёт новый RunbookRepo.
func NewRunbookRepo(pool *pgxpool.Pool) *RunbookRepo {
	return &RunbookRepo{pool: pool}
}

// Sync записывает каталог целиком: upsert всех runbook'ов из списка.
// Runbook'и, пропавшие из seed-файла, остаются в таблице выключенными.
func (r *RunbookRepo) Sync(ctx context.Context, runbooks []domain.Runbook, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	upsert := `
		INSERT INTO runbooks (name, id, display_name, description, category, risk_level,
		                      supports_dry_run, enabled, timeout_sec, parameters_schema, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (name) DO UPDATE
		SET id = EXCLUDED.id, display_name = EXCLUDED.display_name,
		    description = EXCLUDED.description, category = EXCLUDED.category,
		    risk_level = EXCLUDED.risk_level, supports_dry_run = EXCLUDED.supports_dry_run,
		    enabled = EXCLUDED.enabled, timeout_sec = EXCLUDED.timeout_sec,
		    parameters_schema = EXCLUDED.parameters_schema, synced_at = EXCLUDED.synced_at
	`
	names := make([]string, 0, len(runbooks))
	for _, rb := range runbooks {
		schema, err := json.Marshal(rb.ParametersSchema)
		if err != nil {
			return fmt.Errorf("marshal schema of %s: %w", rb.Name, err)
		}
		_, err = tx.Exec(ctx, upsert,
			rb.Name,
			rb.ID,
			rb.DisplayName,
			rb.Description,
			rb.Category,
			rb.RiskLevel,
			rb.SupportsDryRun,
			rb.Enabled,
			rb.TimeoutSec,
			schema,
			at,
		)
		if err != nil {
			return fmt.Errorf("upsert runbook %s: %w", rb.Name, err)
		}
		names = append(names, rb.Name)
	}

	_, err = tx.Exec(ctx, `UPDATE runbooks SET enabled = FALSE, synced_at = $2 WHERE NOT (name = ANY($1))`, names, at)
	if err != nil {
		return fmt.Errorf("disable removed runbooks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List возвращает runbook'и из таблицы, отсортированные по имени.
func (r *RunbookRepo) List(ctx context.Context) ([]domain.Runbook, error) {
	query := `
		SELECT name, id, display_name, description, category, risk_level,
		       supports_dry_run, enabled, timeout_sec, parameters_schema
		FROM runbooks
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list runbooks: %w", err)
	}
	defer rows.Close()

	var list []domain.Runbook
	for rows.Next() {
		var rb domain.Runbook
		var schema []byte
		if err := rows.Scan(
			&rb.Name,
			&rb.ID,
			&rb.DisplayName,
			&rb.Description,
			&rb.Category,
			&rb.RiskLevel,
			&rb.SupportsDryRun,
			&rb.Enabled,
			&rb.TimeoutSec,
			&schema,
		); err != nil {
			return nil, fmt.Errorf("scan runbook: %w", err)
		}
		if err := json.Unmarshal(schema, &rb.ParametersSchema); err != nil {
			return nil, fmt.Errorf("unmarshal schema of %s: %w", rb.Name, err)
		}
		list = append(list, rb)
	}
	return list, rows.Err()
}

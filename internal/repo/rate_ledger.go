package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Runbooks/internal/clock"
)

// RateLedger — rate limiter auto_approve запусков поверх PostgreSQL.
//
// Проверка и запись выполняются в одной транзакции под
// pg_advisory_xact_lock(hashtext(runbook)): параллельные Allow для одного
// runbook'а на разных узлах сериализуются, для разных — не мешают друг другу.
// Окно скользящее, записи старше окна удаляются там же.
type RateLedger struct {
	pool   *pgxpool.Pool
	clock  clock.Clock
	window time.Duration
}

// NewRateLedger создаёт RateLedger. clk == nil — системные часы.
func NewRateLedger(pool *pgxpool.Pool, clk clock.Clock, window time.Duration) *RateLedger {
	if clk == nil {
		clk = clock.Real{}
	}
	return &RateLedger{pool: pool, clock: clk, window: window}
}

// Allow атомарно проверяет лимит и, если он не исчерпан, засчитывает запуск.
// cap <= 0 — автозапуск запрещён, всегда false.
func (l *RateLedger) Allow(ctx context.Context, runbookName string, cap int) (bool, error) {
	if cap <= 0 {
		return false, nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, runbookName); err != nil {
		return false, fmt.Errorf("lock ledger: %w", err)
	}

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	if _, err := tx.Exec(ctx, `DELETE FROM auto_execution_ledger WHERE runbook_name = $1 AND at <= $2`, runbookName, cutoff); err != nil {
		return false, fmt.Errorf("prune ledger: %w", err)
	}

	var used int
	err = tx.QueryRow(ctx, `SELECT count(*) FROM auto_execution_ledger WHERE runbook_name = $1`, runbookName).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("count ledger: %w", err)
	}
	if used >= cap {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO auto_execution_ledger (runbook_name, at) VALUES ($1, $2)`, runbookName, now); err != nil {
		return false, fmt.Errorf("record auto execution: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Release удаляет последнюю запись runbook'а в ledger.
func (l *RateLedger) Release(ctx context.Context, runbookName string) error {
	_, err := l.pool.Exec(ctx, `
		DELETE FROM auto_execution_ledger
		WHERE id = (
			SELECT id FROM auto_execution_ledger
			WHERE runbook_name = $1
			ORDER BY at DESC, id DESC
			LIMIT 1
		)`, runbookName)
	if err != nil {
		return fmt.Errorf("release auto execution: %w", err)
	}
	return nil
}

// Count возвращает число auto_approve запусков в текущем окне.
func (l *RateLedger) Count(ctx context.Context, runbookName string) (int, error) {
	var used int
	err := l.pool.QueryRow(ctx,
		`SELECT count(*) FROM auto_execution_ledger WHERE runbook_name = $1 AND at > $2`,
		runbookName, l.clock.Now().Add(-l.window),
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("count ledger: %w", err)
	}
	return used, nil
}

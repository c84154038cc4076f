package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/telemetry"
)

// EscalationSweep помечает просроченные одобрения.
//
// Execution в pending_approval старше escalation_timeout_minutes своей
// политики получает escalated_at и событие в журнале. Статус не меняется,
// решение за approver'ом. Повторный проход ничего не меняет: MarkEscalated
// условный. Каждый execution обновляется отдельно, общей блокировки нет.
//
// ListOverdue возвращает только ещё не помеченные executions, поэтому
// проход читает пачки, пока они не кончатся: уже эскалированные,
// но не решённые одобрения не заслоняют новые.
//
// Возвращает число помеченных executions.
func (o *Orchestrator) EscalationSweep(ctx context.Context) (int, error) {
	now := o.clock.Now()
	flagged := 0
	var errs []error

	for {
		batch, err := o.store.ListOverdue(ctx, now, o.escalationBatch)
		if err != nil {
			return flagged, errors.Join(append(errs, fmt.Errorf("list overdue: %w", err))...)
		}

		handled := 0
		for i := range batch {
			if err := ctx.Err(); err != nil {
				return flagged, err
			}

			ok, err := o.escalate(ctx, &batch[i], now)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			handled++
			if ok {
				flagged++
			}
		}

		// Неполная пачка — больше нечего читать. Пачка из одних ошибок
		// вернулась бы снова, её оставляем следующему тику.
		if len(batch) < o.escalationBatch || handled == 0 {
			break
		}
	}

	return flagged, errors.Join(errs...)
}

// escalate помечает один execution. false — его уже пометил другой проход.
func (o *Orchestrator) escalate(ctx context.Context, exec *domain.Execution, now time.Time) (bool, error) {
	tr := exec.Event(ActorEscalation, now, "escalated")
	ok, err := o.store.MarkEscalated(ctx, exec.ID, now, tr)
	if err != nil {
		o.logger.Error("failed to escalate execution", "execution_id", exec.ID, "error", err)
		return false, fmt.Errorf("escalate %s: %w", exec.ID, err)
	}
	if !ok {
		return false, nil
	}

	exec.EscalatedAt = &now
	telemetry.RecordEscalation()
	o.logger.Warn("approval overdue, escalated",
		"execution_id", exec.ID,
		"runbook", exec.RunbookName,
		"approver_role", exec.ApproverRole,
		"age", now.Sub(exec.TriggeredAt),
	)
	o.publish(ctx, domain.EventApprovalEscalated, exec, &tr)
	return true, nil
}

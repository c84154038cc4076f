// Package scheduler запускает escalation sweep по расписанию.
//
// Scheduler по cron-выражению (robfig/cron) вызывает
// Orchestrator.EscalationSweep, который помечает просроченные
// одобрения. Статус executions не меняется.
//
// Структура:
//   - scheduler.go — Scheduler (Tick, Start, Stop)
//   - cron.go      — парсинг cron-выражений, адаптер логгера
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Sweeper:  orch,
//	    Leader:   repo.NewLeaderLock(pool, lockKey), // опционально
//	    Schedule: "*/2 * * * *",
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//	sched.Start(ctx)
//	defer sched.Stop(context.Background())
//
// Leader Election:
//
// При нескольких экземплярах проход выполняет только лидер
// (pg_try_advisory_lock на отдельном соединении). Проход
// идемпотентен, поэтому кратковременные два лидера безопасны.
package scheduler

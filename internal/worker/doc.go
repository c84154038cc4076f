// Package worker запускает одобренные executions в async режиме.
//
// # Обзор
//
// При DISPATCH_MODE=async оркестратор останавливается на queued
// и публикует execution.queued. Worker получает событие и вызывает
// Orchestrator.Dispatch, который делает переход queued → executing,
// вызывает Runner и записывает терминальный статус.
//
//   - Получение событий из очереди executions.queued (event-driven)
//   - Периодическая проверка queued executions в БД (polling fallback)
//   - Повтор временных ошибок хранилища с exponential backoff
//
// Workers масштабируются горизонтально. Дубли (redelivery, poll
// одновременно с очередью, второй экземпляр) безопасны: Dispatch
// на execution не в queued возвращает ErrStaleExecutionState,
// и сообщение подтверждается без повторного запуска Runner'а.
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Dispatcher: orch,
//	    Queued:     executionRepo,
//	    Conn:       mqConn,
//	    Logger:     logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
package worker

// Package runner — граница с реализациями runbook'ов.
//
// Оркестратор не знает, что делает конкретный runbook: он вызывает
// Dispatcher.Run(name, dryRun, params) и получает (items_found,
// items_actioned, result) или ошибку.
//
// Компоненты:
//   - Registry: имя runbook'а → реализация (Runbook)
//   - Dispatcher: таймаут, перехват паники, метрики длительности
//   - HTTPRunbook: вызов внешнего automation сервиса по HTTP
//   - StubRunbook: детерминированные сканы для dev режима и тестов
//
// Контракт: Dispatcher никогда не паникует наружу, любой сбой — error.
// dryRun=true гарантирует отсутствие побочных эффектов, это обязанность
// реализации runbook'а.
package runner

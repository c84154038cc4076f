// Package orchestrator управляет жизненным циклом executions.
//
// Orchestrator отвечает за:
//   - Trigger: проверку runbook'а, параметров и политики, выбор между
//     немедленным запуском (auto_approve в пределах rate limit) и очередью одобрения
//   - Decide/Cancel: решения approver'ов, кворум multi_approval, отмену
//   - Dispatch: переход queued → executing и вызов Runner'а
//   - EscalationSweep: пометку просроченных одобрений
//   - чтение истории, журнала переходов и статистики
//
// Каждое изменение execution'а записывается через ExecutionStore.Save
// с проверкой версии. Проигравший параллельную запись получает
// ErrStaleExecutionState. Переход в executing — точка взаимного
// исключения: Runner вызывает только тот, чей Save прошёл.
package orchestrator

// Package repo — хранилище Runbook Orchestrator в PostgreSQL (pgx/v5).
//
// Таблицы описаны в schema.sql и создаются Migrate:
//
//   - executions, execution_transitions, approval_decisions — журнал
//     executions (append-only, изменение состояния только через Save
//     с проверкой версии)
//   - approval_policies — политики одобрения, UNIQUE (runbook_name, trigger_role)
//   - runbooks — копия каталога из seed-файла
//   - auto_execution_ledger — отметки auto_approve запусков для RateLedger
//
// Ошибки: ErrNotFound, ErrAlreadyExists (unique_violation), ErrStaleVersion.
package repo

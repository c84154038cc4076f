// Package policy — хранилище политик одобрения.
//
// Политика отвечает на вопрос "кто может запустить runbook, кто одобряет
// и как". Ключ политики — пара (runbook_name, trigger_role), уникальность
// проверяется при записи, поэтому Resolve всегда однозначен.
package policy

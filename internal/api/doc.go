// Package api содержит HTTP API Runbook Orchestrator.
//
// Структура:
//   - handler.go           — Handler с DI (оркестратор, resolver, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — recovery, logging, аутентификация
//   - response.go          — унифицированные JSON-ответы и маппинг ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - runbook_handler.go   — каталог и политики
//   - execution_handler.go — trigger, история, журнал, результат, статистика
//   - approval_handler.go  — очередь одобрений, решения, отмена
//
// Все маршруты, кроме служебных, требуют аутентификации (401 без неё).
package api

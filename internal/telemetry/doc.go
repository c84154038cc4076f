// Package telemetry — логи и метрики сервисов оркестратора.
//
// logging.go настраивает slog (LOG_LEVEL, LOG_FORMAT) и переносит логгер
// запроса через context. metrics.go объявляет счётчики и гистограммы
// запусков, решений и эскалаций, их отдаёт /metrics каждого бинарника.
package telemetry

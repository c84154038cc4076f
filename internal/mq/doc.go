// Package mq — RabbitMQ для событий жизненного цикла executions.
//
// Структура:
//   - connection.go — соединение с reconnect и graceful shutdown
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация сообщений и EventPublisher для оркестратора
//   - consumer.go   — потребление с ручным ack
//
// Типы сообщений (routing key совпадает с типом):
//   - execution.queued        — execution одобрен и ждёт worker'а (async режим)
//   - execution.transitioned  — любой переход по графу статусов
//   - approval.requested      — execution ждёт решения approver'а
//   - approval.escalated      — одобрение просрочено
//
// Exchanges:
//   - runbooks.executions — topic, все события
//   - runbooks.dlq        — dead letter
package mq

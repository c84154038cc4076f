package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeExecutions Exchange = "runbooks.executions"
	ExchangeDLQ        Exchange = "runbooks.dlq"
)

// Queues — имена очередей.
const (
	// QueueExecutionsQueued — задания для worker'а.
	QueueExecutionsQueued Queue = "executions.queued"

	// QueueApprovalEvents — запросы на одобрение и эскалации для уведомлений.
	QueueApprovalEvents Queue = "approvals.events"

	// QueueDLQExecutions — сообщения, которые не удалось обработать.
	QueueDLQExecutions Queue = "dlq.executions"
)

// Routing keys.
const (
	RoutingKeyQueued       RoutingKey = "execution.queued"
	RoutingKeyTransitioned RoutingKey = "execution.transitioned"
	RoutingKeyApprovals    RoutingKey = "approval.*"
	RoutingKeyDLQ          RoutingKey = "executions"
)

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeExecutions, "topic"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQ),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// executions.queued — с DLQ: сообщение, упавшее дважды, уходит туда
		{QueueExecutionsQueued, dlqArgs},
		{QueueApprovalEvents, nil},
		{QueueDLQExecutions, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	for _, b := range Bindings() {
		err := ch.QueueBind(
			string(b.Queue),      // queue name
			string(b.RoutingKey), // routing key
			string(b.Exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}
	}
	return nil
}

// Binding — привязка очереди к обменнику.
type Binding struct {
	Queue      Queue
	RoutingKey RoutingKey
	Exchange   Exchange
}

// Bindings возвращает все привязки топологии.
func Bindings() []Binding {
	return []Binding{
		{QueueExecutionsQueued, RoutingKeyQueued, ExchangeExecutions},
		{QueueApprovalEvents, RoutingKeyApprovals, ExchangeExecutions},
		{QueueDLQExecutions, RoutingKeyDLQ, ExchangeDLQ},
	}
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Runbooks RabbitMQ Topology:

    runbooks.executions (topic)
    ├── executions.queued [routing: execution.queued]
    │       Consumer: runbook-worker
    │       DLQ: dlq.executions
    └── approvals.events [routing: approval.*]
            Consumer: notifications

    runbooks.dlq (direct)
    └── dlq.executions [routing: executions]
            Manual processing
  `
}

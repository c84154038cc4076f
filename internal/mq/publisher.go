package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Runbooks/internal/domain"
)

// MessageType — тип сообщения. Совпадает с routing key.
type MessageType string

// Типы сообщений.
const (
	MessageTypeExecutionQueued       MessageType = domain.EventExecutionQueued
	MessageTypeExecutionTransitioned MessageType = domain.EventExecutionTransitioned
	MessageTypeApprovalRequested     MessageType = domain.EventApprovalRequested
	MessageTypeApprovalEscalated     MessageType = domain.EventApprovalEscalated
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время события.
	Timestamp time.Time `json:"timestamp"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishEvent публикует событие жизненного цикла execution'а.
// Routing key — тип события.
func (p *Publisher) PublishEvent(ctx context.Context, ev domain.ExecutionEvent) error {
	return p.Publish(ctx, ExchangeExecutions, RoutingKey(ev.Type), NewEventMessage(ev))
}

// NewEventMessage заворачивает событие в конверт.
func NewEventMessage(ev domain.ExecutionEvent) *Message {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      MessageType(ev.Type),
		Payload:   ev,
		Timestamp: ts,
	}
}

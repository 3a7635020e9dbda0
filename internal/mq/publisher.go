package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/dflow/internal/domain"
)

// publishTimeout ограничивает публикацию одного события.
const publishTimeout = 5 * time.Second

// Message — сообщение в очереди.
type Message struct {
	ID        string           `json:"id"`
	Type      domain.EventType `json:"type"`
	Payload   any              `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewEventMessage оборачивает событие в сообщение с новым ID.
func NewEventMessage(ev domain.Event) *Message {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      ev.Type,
		Payload:   ev,
		Timestamp: ts,
	}
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
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
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
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

// MessagePublisher — то, во что EventPublisher отправляет сообщения.
type MessagePublisher interface {
	Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error
}

// EventPublisher — domain.EventSink поверх RabbitMQ.
//
// Ошибки публикации логируются и не возвращаются: переход уже сохранён.
type EventPublisher struct {
	pub    MessagePublisher
	logger *slog.Logger
}

// NewEventPublisher создаёт EventPublisher.
func NewEventPublisher(pub MessagePublisher, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{pub: pub, logger: logger}
}

// Emit реализует domain.EventSink.
func (e *EventPublisher) Emit(ctx context.Context, ev domain.Event) {
	// запрос мог уже завершиться, событие всё равно отправляем
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg := NewEventMessage(ev)
	if err := e.pub.Publish(ctx, ExchangeProcesses, RoutingKeyFor(ev.Type), msg); err != nil {
		e.logger.Warn("failed to publish event",
			"type", ev.Type,
			"job_id", ev.JobID,
			"process_code", ev.ProcessCode,
			"error", err,
		)
	}
}

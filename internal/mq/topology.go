package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/dflow/internal/domain"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeProcesses Exchange = "dflow.processes"
	ExchangeDLQ       Exchange = "dflow.dlq"
)

// Queues.
const (
	// QueueEvents — все события процессов, для внешних потребителей.
	QueueEvents Queue = "processes.events"
	// QueueWakeups — завершения процессов, будят воркеров.
	QueueWakeups Queue = "processes.wakeups"
	QueueDLQ     Queue = "dlq.processes"
)

// Routing keys.
const (
	RoutingKeyAll RoutingKey = "process.#"
	RoutingKeyDLQ RoutingKey = "processes"
)

// RoutingKeyFor возвращает routing key события.
func RoutingKeyFor(t domain.EventType) RoutingKey {
	return RoutingKey(t)
}

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

func exchanges() []exchangeDecl {
	return []exchangeDecl{
		{ExchangeProcesses, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}
}

func queues() []queueDecl {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQ),
	}
	return []queueDecl{
		{QueueEvents, dlqArgs},
		{QueueWakeups, dlqArgs},
		{QueueDLQ, nil},
	}
}

func bindings() []bindingDecl {
	return []bindingDecl{
		{QueueEvents, RoutingKeyAll, ExchangeProcesses},
		{QueueWakeups, RoutingKeyFor(domain.EventProcessDone), ExchangeProcesses},
		{QueueWakeups, RoutingKeyFor(domain.EventProcessFailed), ExchangeProcesses},
		{QueueDLQ, RoutingKeyDLQ, ExchangeDLQ},
	}
}

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges() {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues() {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings() {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  dflow RabbitMQ topology:

    dflow.processes (topic)
    ├── processes.events  [process.#]
    │       external consumers, DLQ: dlq.processes
    └── processes.wakeups [process.done, process.failed]
            Consumer: dflow-worker, DLQ: dlq.processes

    dflow.dlq (direct)
    └── dlq.processes [processes]
  `
}

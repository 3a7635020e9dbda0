// Package mq публикует события жизненного цикла процессов в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация сообщений, EventPublisher (domain.EventSink)
//   - consumer.go   — потребление сообщений (пробуждение воркеров)
//
// Типы сообщений совпадают с domain.EventType и служат routing key:
//   - process.started
//   - process.progress
//   - process.done
//   - process.failed
//
// RabbitMQ необязателен: без него API и воркеры работают только через polling.
package mq

package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientInterface is the queue client surface used by producers and
// consumers. It exists so components can be tested with fakes.
type ClientInterface interface {
	// Push publishes data to the queue and waits for a broker
	// confirmation. The context bounds the whole operation.
	Push(ctx context.Context, data []byte) error

	// Consume continuously delivers queue items on the returned channel.
	// Each delivery must be Acked once processed or Nacked to requeue.
	Consume() (<-chan amqp.Delivery, error)

	// Close cleanly shuts down the channel and connection.
	Close() error
}

var _ ClientInterface = (*Client)(nil)

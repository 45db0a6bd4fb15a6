package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientInterface is the queue surface used by the stored-reading publisher and the
// refresh consumer. It is satisfied by *Client and by mock.MockClient.
type ClientInterface interface {
	// Push publishes data onto the queue and blocks until the broker confirms it.
	Push(ctx context.Context, data []byte) error

	// Consume returns the delivery channel for the queue. Every delivery must be
	// acked or nacked by the caller.
	Consume() (<-chan amqp.Delivery, error)

	// Close shuts down the channel and connection and stops reconnecting.
	Close() error
}

var _ ClientInterface = (*Client)(nil)

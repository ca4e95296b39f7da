// Package broker provides the client side of the backend queue broker:
// a Connection abstraction over NATS JetStream and a bounded Pool that
// hands live connections to gateway requests.
package broker

import (
	"context"
	"time"
)

// RawMessage is one message fetched from the backend broker. Ack must
// be called once the message has been handed to its consumer; an
// unacked message is redelivered.
type RawMessage struct {
	Subject string
	Data    []byte
	Headers map[string]string

	ack func() error
}

// Ack confirms the hand-off of the message.
func (m *RawMessage) Ack() error {
	if m.ack == nil {
		return nil
	}
	return m.ack()
}

// Connection is one live link to the backend queue broker.
//
// Implementations are not required to be safe for concurrent use; the
// Pool guarantees each connection is held by one goroutine at a time.
type Connection interface {
	// Publish relays payload under exchange/routingKey semantics. The
	// backend subject is "<exchange>.<routingKey>".
	Publish(ctx context.Context, exchange, routingKey string, payload []byte, headers map[string]string) error

	// Fetch pulls up to maxMessages from the durable queue bound to
	// queueName, waiting at most wait for the first message. Returns
	// an empty slice when nothing arrived in time.
	Fetch(ctx context.Context, queueName, subject string, maxMessages int, wait time.Duration) ([]RawMessage, error)

	// IsAlive reports whether the link is still usable.
	IsAlive() bool

	// Reconnect re-establishes a dropped link in place.
	Reconnect() error

	// Close releases the link.
	Close() error
}

// Package messaging reads payment events off the message bus and publishes outbox rows to it.
package messaging

import (
	"context"
)

// Consumer is a pull-based subscription to one or more bus topics.
// Implementations are not safe for concurrent PollOnce calls; a Loop owns one consumer.
type Consumer interface {
	// Subscribe starts receiving messages of topic.
	Subscribe(ctx context.Context, topic string) error

	// PollOnce returns the next message, or nil when nothing is waiting.
	PollOnce(ctx context.Context) (*Message, error)

	// Unsubscribe drops every subscription but keeps the connection.
	Unsubscribe() error

	// Alive reports whether the underlying connection is usable.
	Alive() bool

	// Subscriptions lists the subscribed topics.
	Subscriptions() []string

	Close() error
}

// Message is a received bus message awaiting settlement.
type Message struct {
	Topic string
	Key   string
	Body  []byte

	ack    func(ctx context.Context) error
	reject func(ctx context.Context) error
}

// NewMessage creates a message settled through ack and reject.
func NewMessage(topic, key string, body []byte, ack, reject func(ctx context.Context) error) *Message {
	return &Message{
		Topic:  topic,
		Key:    key,
		Body:   body,
		ack:    ack,
		reject: reject,
	}
}

// Ack confirms the message was handed to the pipeline.
func (m *Message) Ack(ctx context.Context) error {
	if m.ack == nil {
		return nil
	}
	return m.ack(ctx)
}

// Reject drops the message without redelivery.
func (m *Message) Reject(ctx context.Context) error {
	if m.reject == nil {
		return nil
	}
	return m.reject(ctx)
}

// Package messaging provides abstractions for message broker communication.
// Services publish through the Publisher interface without being coupled to a
// specific broker implementation.
package messaging

import (
	"context"
	"time"
)

// Message represents a message received from or sent to a message broker.
type Message struct {
	// Subject is the topic/channel the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Metadata contains optional key-value pairs for message headers.
	// Brokers without header support ignore it.
	Metadata map[string]string

	// Timestamp is when the message was published or received.
	Timestamp time.Time
}

// MessageHandler processes a received message.
// Returning an error asks the broker to redeliver when it supports that.
type MessageHandler func(ctx context.Context, msg *Message) error

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends data to the specified subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message with headers.
	PublishMsg(ctx context.Context, msg *Message) error

	// IsConnected returns true if the publisher is connected to the broker.
	IsConnected() bool

	// Close releases any resources held by the publisher.
	Close() error
}

// PublishOption configures a message built by NewMessage.
type PublishOption func(*Message)

// WithHeader adds a header to the published message.
func WithHeader(key, value string) PublishOption {
	return func(m *Message) {
		if m.Metadata == nil {
			m.Metadata = make(map[string]string)
		}
		m.Metadata[key] = value
	}
}

// WithMsgID sets the broker-side deduplication id.
func WithMsgID(id string) PublishOption {
	return WithHeader(HeaderMsgID, id)
}

// NewMessage builds a Message for subject with the given options applied.
func NewMessage(subject string, data []byte, opts ...PublishOption) *Message {
	m := &Message{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

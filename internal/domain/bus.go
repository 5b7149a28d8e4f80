package domain

import (
	"context"
)

// EventBus carries asynchronous signals between components.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" yaml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" yaml:"channel_buffer_size"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" yaml:"nats_url"`
	NATSToken         string `json:"-" yaml:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" yaml:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" yaml:"nats_reconnect_wait"` // seconds
}

// Topic names.
const (
	// TopicRetrainRequested carries a RetrainSignal. Published when the
	// fraud counter crosses its threshold or on manual request.
	TopicRetrainRequested = "kestrel.model.retrain"

	// TopicModelUpdated carries the version of a newly persisted artifact.
	TopicModelUpdated = "kestrel.model.updated"
)

// RetrainSignal is the payload of TopicRetrainRequested.
type RetrainSignal struct {
	Reason      string `json:"reason"` // "threshold" or "manual"
	RequestedAt int64  `json:"requested_at"`
}

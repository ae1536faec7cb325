package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// ChannelFor maps an outbox event type to the channel it is published on.
func ChannelFor(eventType string) string {
	return "events." + eventType
}

// Package messaging delivers domain events to the external notification sink.
package messaging

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Message is one event handed to a Publisher.
type Message struct {
	Topic      string
	Key        string
	Type       string
	Value      []byte
	OccurredAt time.Time
}

// Publisher delivers messages to a sink.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// LogPublisher writes messages to the structured log. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the message.
func (p *LogPublisher) Publish(_ context.Context, msg Message) error {
	p.logger.Info("notification event",
		zap.String("topic", msg.Topic),
		zap.String("type", msg.Type),
		zap.String("key", msg.Key),
		zap.Time("occurred_at", msg.OccurredAt),
		zap.ByteString("payload", msg.Value),
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }

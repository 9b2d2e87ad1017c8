package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer lazily manages writers per topic.
type KafkaProducer struct {
	brokers   []string
	newWriter func(topic string) messageWriter

	mu      sync.Mutex
	writers map[string]messageWriter
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) (*KafkaProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka producer requires at least one broker")
	}
	p := &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]messageWriter),
	}
	p.newWriter = p.kafkaWriter
	return p, nil
}

// Publish writes msg to its topic keyed by msg.Key so events for one
// enrollment or session stay ordered within a partition.
func (p *KafkaProducer) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return fmt.Errorf("kafka publish: topic required")
	}
	occurred := msg.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	record := kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Value,
		Time:  occurred,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.Type)},
		},
	}
	if err := p.writerForTopic(msg.Topic).WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("kafka publish %s: %w", msg.Type, err)
	}
	return nil
}

func (p *KafkaProducer) writerForTopic(topic string) messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}
	writer := p.newWriter(topic)
	p.writers[topic] = writer
	return writer
}

func (p *KafkaProducer) kafkaWriter(topic string) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}

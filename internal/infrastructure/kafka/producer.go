package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/retail-orders/internal/apperr"
)

// messageWriter is the part of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer sends order payloads to a topic.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer}
}

// Send publishes the payload keyed by itself, so redeliveries of the same
// order land on the same partition.
func (p *Producer) Send(ctx context.Context, payload string) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payload),
		Value: []byte(payload),
		Time:  time.Now(),
	})
	if err != nil {
		return apperr.Transient(fmt.Errorf("kafka send: %w", err))
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

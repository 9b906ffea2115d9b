package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler processes one payload. A non-nil error asks for a retry.
type MessageHandler func(ctx context.Context, payload string) error

// messageReader is the part of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic with manual commits. A message whose handler keeps
// failing is moved to the dead-letter topic after MaxAttempts tries.
type Consumer struct {
	reader     messageReader
	deadLetter messageWriter
	log        *zap.Logger

	MaxAttempts int
	Backoff     time.Duration
}

type ConsumerConfig struct {
	Brokers         []string
	Topic           string
	GroupID         string
	DeadLetterTopic string
	MaxAttempts     int
}

func NewConsumer(cfg ConsumerConfig, log *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	var deadLetter messageWriter
	if cfg.DeadLetterTopic != "" {
		deadLetter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DeadLetterTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return newConsumer(reader, deadLetter, cfg.MaxAttempts, log)
}

func newConsumer(reader messageReader, deadLetter messageWriter, maxAttempts int, log *zap.Logger) *Consumer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		reader:      reader,
		deadLetter:  deadLetter,
		log:         log,
		MaxAttempts: maxAttempts,
		Backoff:     200 * time.Millisecond,
	}
}

// Consume blocks until ctx ends or a message can be neither handled nor
// dead-lettered; in the latter case the offset is not committed and the
// error is returned so the message is read again after a restart.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("error reading message", zap.Error(err))
			continue
		}

		log := c.log.With(
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))

		if err := c.handle(ctx, msg, handler, log); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("failed to commit offset", zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler, log *zap.Logger) error {
	payload := string(msg.Value)

	var lastErr error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		lastErr = handler(ctx, payload)
		if lastErr == nil {
			return nil
		}
		log.Warn("handler failed", zap.Int("attempt", attempt), zap.Error(lastErr))

		if attempt < c.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.Backoff * time.Duration(attempt)):
			}
		}
	}

	if c.deadLetter == nil {
		log.Error("dropping poison message", zap.String("payload", payload), zap.Error(lastErr))
		return nil
	}

	err := c.deadLetter.WriteMessages(ctx, kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: "x-original-topic", Value: []byte(msg.Topic)},
			{Key: "x-attempts", Value: []byte(strconv.Itoa(c.MaxAttempts))},
			{Key: "x-error", Value: []byte(lastErr.Error())},
		},
	})
	if err != nil {
		return fmt.Errorf("dead-letter message at offset %d: %w", msg.Offset, errors.Join(err, lastErr))
	}
	log.Error("message moved to dead-letter topic", zap.String("payload", payload), zap.Error(lastErr))
	return nil
}

func (c *Consumer) Close() error {
	var errs []error
	if err := c.reader.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.deadLetter != nil {
		if err := c.deadLetter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

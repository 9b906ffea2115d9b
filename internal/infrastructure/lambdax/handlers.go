package lambdax

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// MessageHandler processes one queue payload; an error asks for redelivery.
type MessageHandler func(ctx context.Context, payload string) error

// SQSBatchHandler adapts a MessageHandler to an SQS-triggered function.
// Failed messages are reported as partial batch failures so only they are
// redelivered; the queue's redrive policy dead-letters repeat offenders.
func SQSBatchHandler(handle MessageHandler, log *zap.Logger) func(context.Context, events.SQSEvent) (events.SQSEventResponse, error) {
	return func(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
		log.Info("received messages", zap.Int("count", len(ev.Records)))

		var failures []events.SQSBatchItemFailure
		for _, record := range ev.Records {
			if err := handle(ctx, record.Body); err != nil {
				log.Error("failed to process message",
					zap.String("message_id", record.MessageId),
					zap.Error(err))
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			}
		}

		log.Info("processed messages",
			zap.Int("succeeded", len(ev.Records)-len(failures)),
			zap.Int("total", len(ev.Records)))
		return events.SQSEventResponse{BatchItemFailures: failures}, nil
	}
}

// SweepFunc runs one periodic job pass at now.
type SweepFunc func(ctx context.Context, now time.Time) (int, error)

// SweepResult is returned to the scheduler.
type SweepResult struct {
	Affected int       `json:"affected"`
	At       time.Time `json:"at"`
}

// ScheduledHandler adapts a SweepFunc to an EventBridge schedule. The event
// time is used as now so a retried invocation sweeps the same window.
func ScheduledHandler(sweep SweepFunc, log *zap.Logger) func(context.Context, events.CloudWatchEvent) (SweepResult, error) {
	return func(ctx context.Context, ev events.CloudWatchEvent) (SweepResult, error) {
		now := ev.Time
		if now.IsZero() {
			now = time.Now()
		}
		now = now.UTC()

		n, err := sweep(ctx, now)
		if err != nil {
			log.Error("scheduled run finished with errors", zap.Int("affected", n), zap.Error(err))
			return SweepResult{Affected: n, At: now}, err
		}
		log.Info("scheduled run finished", zap.Int("affected", n), zap.Time("at", now))
		return SweepResult{Affected: n, At: now}, nil
	}
}

// ObjectHandler processes one stored object.
type ObjectHandler func(ctx context.Context, key string) error

// S3Handler adapts an ObjectHandler to S3 object-created notifications for
// keys under prefix. Errors are joined and returned so the invocation is
// retried.
func S3Handler(prefix string, handle ObjectHandler, log *zap.Logger) func(context.Context, events.S3Event) error {
	return func(ctx context.Context, ev events.S3Event) error {
		var errs []error
		for _, record := range ev.Records {
			key, err := ObjectKey(record)
			if err != nil {
				log.Warn("skipping undecodable object key", zap.String("key", record.S3.Object.Key), zap.Error(err))
				continue
			}
			if !strings.HasPrefix(key, prefix) {
				log.Debug("ignoring object outside prefix", zap.String("key", key))
				continue
			}
			if err := handle(ctx, key); err != nil {
				log.Error("failed to process object", zap.String("key", key), zap.Error(err))
				errs = append(errs, fmt.Errorf("object %s: %w", key, err))
			}
		}
		return errors.Join(errs...)
	}
}

// ObjectKey decodes the URL-encoded key carried by an S3 notification.
func ObjectKey(record events.S3EventRecord) (string, error) {
	if record.S3.Object.URLDecodedKey != "" {
		return record.S3.Object.URLDecodedKey, nil
	}
	return url.QueryUnescape(record.S3.Object.Key)
}

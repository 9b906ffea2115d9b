package queue

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Handler processes one payload; an error triggers redelivery.
type Handler func(ctx context.Context, payload string) error

// MemoryQueue is an in-process at-least-once queue. Payloads that fail
// MaxAttempts deliveries are moved to the dead-letter list.
type MemoryQueue struct {
	mu          sync.Mutex
	chMu        sync.RWMutex // guards closing ch against in-flight sends
	ch          chan string
	sent        []string
	deadLetters []string
	closed      bool

	MaxAttempts int
	log         *zap.Logger
}

func NewMemoryQueue(capacity, maxAttempts int, log *zap.Logger) *MemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryQueue{
		ch:          make(chan string, capacity),
		MaxAttempts: maxAttempts,
		log:         log,
	}
}

var ErrClosed = errors.New("queue closed")

func (q *MemoryQueue) Send(ctx context.Context, payload string) error {
	q.chMu.RLock()
	defer q.chMu.RUnlock()

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case q.ch <- payload:
		q.mu.Lock()
		q.sent = append(q.sent, payload)
		q.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers payloads to handler until ctx ends or the queue is closed.
func (q *MemoryQueue) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-q.ch:
			if !ok {
				return nil
			}
			q.Deliver(ctx, payload, handler)
		}
	}
}

// Deliver hands one payload to handler, redelivering on failure.
// It reports whether the payload was eventually handled.
func (q *MemoryQueue) Deliver(ctx context.Context, payload string, handler Handler) bool {
	for attempt := 1; attempt <= q.MaxAttempts; attempt++ {
		err := handler(ctx, payload)
		if err == nil {
			return true
		}
		q.log.Warn("delivery failed",
			zap.String("payload", payload),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if ctx.Err() != nil {
			return false
		}
	}

	q.mu.Lock()
	q.deadLetters = append(q.deadLetters, payload)
	q.mu.Unlock()
	q.log.Error("message moved to dead letters", zap.String("payload", payload))
	return false
}

// Close stops accepting payloads; Run drains what is buffered and returns.
func (q *MemoryQueue) Close() {
	q.chMu.Lock()
	defer q.chMu.Unlock()
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Sent returns every payload Send enqueued.
func (q *MemoryQueue) Sent() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.sent...)
}

// DeadLetters returns payloads that exhausted their attempts.
func (q *MemoryQueue) DeadLetters() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deadLetters...)
}

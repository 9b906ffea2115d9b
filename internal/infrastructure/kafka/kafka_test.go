package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/retail-orders/internal/apperr"
)

// fakeReader serves queued messages then blocks until ctx is done
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	idle      bool
	FetchErr  error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.FetchErr != nil {
		err := r.FetchErr
		r.FetchErr = nil
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.idle = true
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	mu       sync.Mutex
	written  []kafka.Message
	WriteErr error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.WriteErr != nil {
		return w.WriteErr
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// ============================================
// Producer Tests
// ============================================

func TestProducer_Send(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	require.NoError(t, p.Send(context.Background(), "NewOrder:o1"))

	require.Len(t, w.written, 1)
	assert.Equal(t, "NewOrder:o1", string(w.written[0].Value))
	assert.Equal(t, "NewOrder:o1", string(w.written[0].Key))
}

func TestProducer_Send_ErrorIsTransient(t *testing.T) {
	p := &Producer{writer: &fakeWriter{WriteErr: errors.New("leader not available")}}

	err := p.Send(context.Background(), "NewOrder:o1")
	assert.True(t, apperr.IsTransient(err))
}

// ============================================
// Consumer Tests
// ============================================

func runConsumer(t *testing.T, c *Consumer, r *fakeReader, handler MessageHandler) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, handler) }()

	// Wait until the consumer is blocked waiting for more messages.
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.idle
	}, testTimeout, testTick)

	select {
	case err := <-done:
		return err
	default:
	}
	cancel()
	return <-done
}

func TestConsumer_CommitsHandledMessages(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Offset: 1, Value: []byte("NewOrder:a")}, {Offset: 2, Value: []byte("NewOrder:b")}}}
	c := newConsumer(r, &fakeWriter{}, 3, nil)
	c.Backoff = 0

	var (
		mu   sync.Mutex
		seen []string
	)
	err := runConsumer(t, c, r, func(_ context.Context, payload string) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, payload)
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"NewOrder:a", "NewOrder:b"}, seen)
	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.committed) == 2
	}, testTimeout, testTick)
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: []byte("NewOrder:a")}}}
	dlq := &fakeWriter{}
	c := newConsumer(r, dlq, 3, nil)
	c.Backoff = 0

	calls := 0
	_ = runConsumer(t, c, r, func(context.Context, string) error {
		calls++
		if calls < 3 {
			return apperr.Transient(errors.New("store busy"))
		}
		return nil
	})

	assert.Equal(t, 3, calls)
	assert.Empty(t, dlq.written)
}

func TestConsumer_DeadLettersPoisonMessage(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Topic: "order-queue", Offset: 9, Value: []byte("NewOrder:bad")}}}
	dlq := &fakeWriter{}
	c := newConsumer(r, dlq, 2, nil)
	c.Backoff = 0

	calls := 0
	_ = runConsumer(t, c, r, func(context.Context, string) error {
		calls++
		return errors.New("always fails")
	})

	assert.Equal(t, 2, calls)
	require.Eventually(t, func() bool {
		dlq.mu.Lock()
		defer dlq.mu.Unlock()
		return len(dlq.written) == 1
	}, testTimeout, testTick)
	assert.Equal(t, "NewOrder:bad", string(dlq.written[0].Value))
	assert.Equal(t, "order-queue", header(dlq.written[0], "x-original-topic"))
	assert.Equal(t, "2", header(dlq.written[0], "x-attempts"))
}

func TestConsumer_StopsWhenDeadLetterFails(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Offset: 3, Value: []byte("NewOrder:bad")}}}
	c := newConsumer(r, &fakeWriter{WriteErr: errors.New("dlq down")}, 1, nil)

	err := c.Consume(context.Background(), func(context.Context, string) error {
		return errors.New("always fails")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dlq down")
	assert.Empty(t, r.committed, "offset must not be committed")
}

func TestConsumer_SkipsFetchErrors(t *testing.T) {
	r := &fakeReader{
		FetchErr: errors.New("rebalance in progress"),
		msgs:     []kafka.Message{{Offset: 1, Value: []byte("NewOrder:a")}},
	}
	c := newConsumer(r, nil, 1, nil)

	handled := make(chan string, 1)
	_ = runConsumer(t, c, r, func(_ context.Context, payload string) error {
		handled <- payload
		return nil
	})

	assert.Equal(t, "NewOrder:a", <-handled)
}

package mocks

import (
	"context"
	"sync"

	"github.com/example/retail-orders/internal/infrastructure/store"
)

// MockRepository wraps an in-memory store and records calls so tests can
// inject failures on specific operations.
type MockRepository[T store.Record] struct {
	mu    sync.Mutex
	inner *store.MemoryStore[T]

	GetErr     error
	InsertErr  error
	ReplaceErr error
	QueryErr   error
	DeleteErr  error

	// ReplaceCallback, when set, runs before the real Replace. A non-nil
	// error short-circuits the write.
	ReplaceCallback func(ctx context.Context, rec T, expectedVersion int64) error

	GetCalls     []KeyCall
	InsertCalls  []T
	ReplaceCalls []ReplaceCall[T]
	QueryCalls   []string
	DeleteCalls  []KeyCall
}

// KeyCall records the key passed to Get or Delete
type KeyCall struct {
	Partition string
	ID        string
}

// ReplaceCall records parameters passed to Replace
type ReplaceCall[T store.Record] struct {
	Record          T
	ExpectedVersion int64
}

// NewMockRepository creates a new MockRepository
func NewMockRepository[T store.Record](newRecord func() T) *MockRepository[T] {
	return &MockRepository[T]{inner: store.NewMemoryStore(newRecord)}
}

// Seed inserts records directly, bypassing call recording and injected errors.
func (m *MockRepository[T]) Seed(ctx context.Context, recs ...T) error {
	for _, rec := range recs {
		if err := m.inner.Insert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Inner exposes the backing store for assertions.
func (m *MockRepository[T]) Inner() *store.MemoryStore[T] {
	return m.inner
}

func (m *MockRepository[T]) Get(ctx context.Context, partition, id string) (T, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, KeyCall{Partition: partition, ID: id})
	err := m.GetErr
	m.mu.Unlock()

	if err != nil {
		var zero T
		return zero, err
	}
	return m.inner.Get(ctx, partition, id)
}

func (m *MockRepository[T]) Insert(ctx context.Context, rec T) error {
	m.mu.Lock()
	m.InsertCalls = append(m.InsertCalls, rec)
	err := m.InsertErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.inner.Insert(ctx, rec)
}

func (m *MockRepository[T]) Replace(ctx context.Context, rec T, expectedVersion int64) error {
	m.mu.Lock()
	m.ReplaceCalls = append(m.ReplaceCalls, ReplaceCall[T]{Record: rec, ExpectedVersion: expectedVersion})
	err := m.ReplaceErr
	callback := m.ReplaceCallback
	m.mu.Unlock()

	if callback != nil {
		if err := callback(ctx, rec, expectedVersion); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	return m.inner.Replace(ctx, rec, expectedVersion)
}

func (m *MockRepository[T]) QueryByPartition(ctx context.Context, partition string) ([]T, error) {
	m.mu.Lock()
	m.QueryCalls = append(m.QueryCalls, partition)
	err := m.QueryErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.inner.QueryByPartition(ctx, partition)
}

func (m *MockRepository[T]) Delete(ctx context.Context, partition, id string) (store.DeleteResult, error) {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, KeyCall{Partition: partition, ID: id})
	err := m.DeleteErr
	m.mu.Unlock()

	if err != nil {
		return 0, err
	}
	return m.inner.Delete(ctx, partition, id)
}

// ReplaceCount returns how many times Replace was called
func (m *MockRepository[T]) ReplaceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ReplaceCalls)
}

package store

import (
	"context"
	"sort"
	"sync"
)

type memoryItem struct {
	version int64
	data    []byte
}

// MemoryStore is an in-process Repository. Records are kept encoded so callers
// never share memory with the store, matching the remote backends.
type MemoryStore[T Record] struct {
	mu        sync.RWMutex
	data      map[string]map[string]memoryItem // partition -> id -> item
	newRecord func() T
}

func NewMemoryStore[T Record](newRecord func() T) *MemoryStore[T] {
	return &MemoryStore[T]{
		data:      make(map[string]map[string]memoryItem),
		newRecord: newRecord,
	}
}

func (s *MemoryStore[T]) Get(ctx context.Context, partition, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	s.mu.RLock()
	item, ok := s.data[partition][id]
	s.mu.RUnlock()
	if !ok {
		return zero, ErrNotFound
	}
	return decode(s.newRecord, item.data, item.version)
}

func (s *MemoryStore[T]) Insert(ctx context.Context, rec T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	partition := s.data[rec.PartitionKey()]
	if partition == nil {
		partition = make(map[string]memoryItem)
		s.data[rec.PartitionKey()] = partition
	}
	if _, exists := partition[rec.RowKey()]; exists {
		return ErrConflict
	}
	partition[rec.RowKey()] = memoryItem{version: 1, data: data}
	rec.SetVersion(1)
	return nil
}

func (s *MemoryStore[T]) Replace(ctx context.Context, rec T, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[rec.PartitionKey()][rec.RowKey()]
	if !ok {
		return ErrNotFound
	}
	if expectedVersion != AnyVersion && current.version != expectedVersion {
		return ErrVersionMismatch
	}
	next := current.version + 1
	s.data[rec.PartitionKey()][rec.RowKey()] = memoryItem{version: next, data: data}
	rec.SetVersion(next)
	return nil
}

func (s *MemoryStore[T]) QueryByPartition(ctx context.Context, partition string) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.data[partition]))
	items := make(map[string]memoryItem, len(s.data[partition]))
	for id, item := range s.data[partition] {
		ids = append(ids, id)
		items[id] = item
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		rec, err := decode(s.newRecord, items[id].data, items[id].version)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore[T]) Delete(ctx context.Context, partition, id string) (DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[partition][id]; !ok {
		return DeleteNotFound, nil
	}
	delete(s.data[partition], id)
	return Deleted, nil
}

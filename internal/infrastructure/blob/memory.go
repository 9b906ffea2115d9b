package blob

import (
	"context"
	"sync"
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore keeps blobs in process. URIs have the form memory://<name>.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	PutErr  error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

func (m *MemoryStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return "", m.PutErr
	}
	m.objects[name] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return m.URI(name), nil
}

func (m *MemoryStore) URI(name string) string {
	return "memory://" + name
}

// Get returns a stored blob.
func (m *MemoryStore) Get(name string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[name]
	return obj, ok
}

// Names lists stored blob names in no particular order.
func (m *MemoryStore) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	return names
}

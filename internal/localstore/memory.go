package localstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and when no data
// directory is writable
type MemoryStore struct {
	name string
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name, data: make(map[string]string)}
}

func (m *MemoryStore) Name() string { return m.name }

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	return nil
}

// Len returns the number of stored keys
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

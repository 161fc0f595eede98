package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-process KV used when no database is configured and
// throughout the tests. State does not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]json.RawMessage)}
}

// Get returns copies of the requested keys.
func (m *MemoryStore) Get(_ context.Context, keys ...string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		if value, ok := m.values[key]; ok {
			result[key] = append(json.RawMessage(nil), value...)
		}
	}
	return result, nil
}

// Set stores copies of the given values.
func (m *MemoryStore) Set(_ context.Context, values map[string]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range values {
		m.values[key] = append(json.RawMessage(nil), value...)
	}
	return nil
}

// Clear drops all keys.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]json.RawMessage)
	return nil
}

var _ KV = (*MemoryStore)(nil)

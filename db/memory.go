package db

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local store with the same behaviour as KVStore.
// It backs STORE_BACKEND=memory and the tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sections map[string]map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sections: make(map[string]map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, section, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.sections[section][key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, section, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sec, ok := m.sections[section]
	if !ok {
		sec = make(map[string]string)
		m.sections[section] = sec
	}
	sec[key] = value
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, section, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sections[section][key]
	return ok, nil
}

func (m *MemoryStore) Delete(_ context.Context, section, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sections[section], key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, section string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.sections[section]))
	for k := range m.sections[section] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Entries(ctx context.Context, section string) ([]Entry, error) {
	keys, _ := m.Keys(ctx, section)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Value: m.sections[section][k]})
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

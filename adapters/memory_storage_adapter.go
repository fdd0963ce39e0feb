package adapters

import "sync"

// MemoryStorageAdapter keeps values in process memory.
// Useful for tests and for sessions where nothing should outlive the process.
type MemoryStorageAdapter struct {
	mu       sync.RWMutex
	values   map[string]string
	maxBytes int
	used     int
}

// Ensure MemoryStorageAdapter implements StorageAdapter interface
var _ StorageAdapter = (*MemoryStorageAdapter)(nil)

// NewMemoryStorageAdapter creates an unbounded in-memory adapter.
func NewMemoryStorageAdapter() *MemoryStorageAdapter {
	return &MemoryStorageAdapter{values: make(map[string]string)}
}

// NewMemoryStorageAdapterWithQuota creates an adapter that rejects writes once
// the total size of keys and values would exceed maxBytes.
func NewMemoryStorageAdapterWithQuota(maxBytes int) *MemoryStorageAdapter {
	m := NewMemoryStorageAdapter()
	m.maxBytes = maxBytes
	return m
}

// Get returns the value stored under key.
func (m *MemoryStorageAdapter) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStorageAdapter) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used + len(value)
	if old, ok := m.values[key]; ok {
		used -= len(old)
	} else {
		used += len(key)
	}
	if m.maxBytes > 0 && used > m.maxBytes {
		return &StorageQuotaExceededError{}
	}

	m.values[key] = value
	m.used = used
	return nil
}

// Remove deletes key.
func (m *MemoryStorageAdapter) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.values[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.values, key)
	}
	return nil
}

// Keys lists all stored keys.
func (m *MemoryStorageAdapter) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys, nil
}

package tempstore

import (
	"sync"
	"time"
)

// Index records when each temp file was created, keyed by base name.
type Index interface {
	Put(name string, createdAt time.Time) error
	Get(name string) (time.Time, bool, error)
	Delete(name string) error
	Range(fn func(name string, createdAt time.Time) bool) error
	Close() error
}

// MemoryIndex is an Index kept in process memory.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]time.Time)}
}

func (m *MemoryIndex) Put(name string, createdAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = createdAt
	return nil
}

func (m *MemoryIndex) Get(name string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.entries[name]
	return t, ok, nil
}

func (m *MemoryIndex) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}

func (m *MemoryIndex) Range(fn func(name string, createdAt time.Time) bool) error {
	m.mu.RLock()
	snapshot := make(map[string]time.Time, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = v
	}
	m.mu.RUnlock()
	for k, v := range snapshot {
		if !fn(k, v) {
			return nil
		}
	}
	return nil
}

func (m *MemoryIndex) Close() error { return nil }

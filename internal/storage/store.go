// Package storage is the durable-store boundary: an opaque per-room key-value
// facility plus one schedulable wake-up deadline. The coordinator treats it as
// crash-consistent across restarts and never looks behind the interface.
package storage

import (
	"errors"
	"sync"
)

// ErrKeyNotFound is returned when a key doesn't exist in the store.
var ErrKeyNotFound = errors.New("key not found")

// Store is the per-room persistence facility. Implementations must be safe
// for concurrent access.
type Store interface {
	// Get retrieves a value by key, ErrKeyNotFound if absent.
	Get(key string) ([]byte, error)

	// Put stores a value, overwriting any existing one.
	Put(key string, value []byte) error

	// Delete removes a key. No error if the key doesn't exist.
	Delete(key string) error
}

// Provider hands out room-scoped stores. Two calls with the same room id
// return the same underlying storage.
type Provider interface {
	ForRoom(roomID string) Store
}

// MemoryStore implements Store with in-process storage.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns a copy of the value so callers can't mutate stored state.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryStore) Put(key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = stored
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// MemoryProvider keeps one MemoryStore per room.
type MemoryProvider struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{stores: make(map[string]*MemoryStore)}
}

func (p *MemoryProvider) ForRoom(roomID string) Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.stores[roomID]
	if !ok {
		st = NewMemoryStore()
		p.stores[roomID] = st
	}
	return st
}

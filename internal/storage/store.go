package storage

import "sync"

// Keys of the three persisted collections.
const (
	KeyUsers       = "users"
	KeyPhotos      = "photos"
	KeyCurrentUser = "currentUser"
)

// Store is a flat string key/value store, the shape of browser local storage.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// MemoryStore is an in-process Store. The zero value is ready to use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

// Get implements Store.
func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

// Set implements Store.
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	m.entries[key] = value
	return nil
}

// Remove implements Store.
func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Listener is told about every successful write. removed is true for Remove.
type Listener func(key string, removed bool)

type observed struct {
	Store
	listener Listener
}

// Observe wraps s so that listener runs after each successful Set or Remove.
func Observe(s Store, listener Listener) Store {
	if listener == nil {
		return s
	}
	return &observed{Store: s, listener: listener}
}

func (o *observed) Set(key, value string) error {
	if err := o.Store.Set(key, value); err != nil {
		return err
	}
	o.listener(key, false)
	return nil
}

func (o *observed) Remove(key string) error {
	if err := o.Store.Remove(key); err != nil {
		return err
	}
	o.listener(key, true)
	return nil
}

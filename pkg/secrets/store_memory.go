package secrets

import "sync"

// MemoryStore is an in-memory implementation of the Store interface.
// This is primarily useful for testing and sessions that don't need
// persistence.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates a new in-memory secret store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

// Store persists a value under a key.
func (s *MemoryStore) Store(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Retrieve returns the value for a key.
func (s *MemoryStore) Retrieve(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		return "", ErrNotFound
	}
	return value, nil
}

// Delete removes the value for a key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)

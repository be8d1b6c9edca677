package keystore

import "sync"

// MemoryStore is an in-process Store for tests and ephemeral vaults.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	access  map[string]Accessibility

	// FailSet, when non-nil, is returned by every Set call.
	FailSet error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]byte),
		access:  make(map[string]Accessibility),
	}
}

// Get returns a copy of the value under alias.
func (m *MemoryStore) Get(alias string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[alias]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value under alias.
func (m *MemoryStore) Set(alias string, value []byte, access Accessibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSet != nil {
		return m.FailSet
	}
	m.entries[alias] = append([]byte(nil), value...)
	m.access[alias] = access
	return nil
}

// Delete removes alias.
func (m *MemoryStore) Delete(alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, alias)
	delete(m.access, alias)
	return nil
}

// AccessibilityOf reports the policy recorded for alias.
func (m *MemoryStore) AccessibilityOf(alias string) Accessibility {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access[alias]
}

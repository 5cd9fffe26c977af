// Package localstore is the local snapshot area: a small string key/value
// store that holds the guest profile snapshot between sessions.
//
// Stores never fail observably. Backend errors are logged and a failed read is
// reported as absent, so a broken store degrades to "no snapshot" and the
// caller re-derives defaults.
package localstore

import "sync"

// DefaultKey is the key the guest snapshot is stored under.
const DefaultKey = "guestProfile"

// Store is the local snapshot area.
type Store interface {
	// Get returns the text stored under key, if any.
	Get(key string) (string, bool)
	// Set stores text under key, replacing any previous value.
	Set(key, text string)
	// Remove deletes key. Removing an absent key is a no-op.
	Remove(key string)
}

// Memory is an in-process Store. Contents are lost when the process exits.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.data[key]
	return text, ok
}

func (m *Memory) Set(key, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = text
}

func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*Redis)(nil)
)

package override

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps overrides in process memory. It is the default store for
// a single API instance.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Set
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Set)}
}

func (m *MemoryStore) Get(_ context.Context, sessionID, schemeID string) (Override, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.sessions[sessionID][schemeID]
	return o, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, sessionID string, o Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sessions[sessionID]
	if !ok {
		set = make(Set)
		m.sessions[sessionID] = set
	}
	set[o.SchemeID] = o
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID, schemeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.sessions[sessionID]
	delete(set, schemeID)
	if len(set) == 0 {
		delete(m.sessions, sessionID)
	}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	return nil
}

// Snapshot returns a copy so callers never observe later writes.
func (m *MemoryStore) Snapshot(_ context.Context, sessionID string) (Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.sessions[sessionID]
	out := make(Set, len(src))
	for id, o := range src {
		out[id] = o
	}
	return out, nil
}

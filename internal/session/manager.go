package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/codec"
)

// Manager owns the live-session map: the only resource visible across
// sessions (spec §5). It requires internally synchronized access; readers
// (the discovery responder, for player count) take at most a snapshot of
// the current size.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// New creates a fresh Session for a newly accepted upstream peer, generates
// its identifier, and registers it in the map. The session map contains a
// session iff neither of its two peers has completed teardown (spec §3
// invariant), so New and Session.Close are the map's only writers.
func (m *Manager) New(upstream codec.RawConn) *Session {
	s := newSession(uuid.New().String(), upstream, m)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s
}

// Get retrieves a session by identifier.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove removes a session by identifier. It is idempotent: removing a
// session that is not present is a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns a snapshot of the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot slice of all live sessions, safe to iterate
// without holding the manager's lock.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	return all
}

// CloseAll tears down every live session, used by the proxy's shutdown
// hook (spec §5).
func (m *Manager) CloseAll() {
	for _, s := range m.All() {
		s.Close()
	}
}

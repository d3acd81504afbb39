package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewdesk/crewdesk/internal/log"
	"github.com/crewdesk/crewdesk/internal/metrics"
)

// MemoryStore keeps sessions in process memory. Sessions do not survive a
// restart, which for OAuth tokens is the desired behavior in development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewMemoryStore creates an in-memory session store with a sliding TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

func (m *MemoryStore) GetOrCreate(_ context.Context, id string) (*Session, bool, error) {
	if id != "" {
		m.mu.RLock()
		s, ok := m.sessions[id]
		m.mu.RUnlock()
		if ok && !m.expired(s) {
			s.Touch()
			return s, false, nil
		}
	}

	s := newSession(uuid.NewString())
	m.mu.Lock()
	m.sessions[s.ID] = s
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	return s, true, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || m.expired(s) {
		return nil, ErrNotFound
	}
	return s, nil
}

// Save is a no-op: callers mutate the shared session pointer directly.
func (m *MemoryStore) Save(_ context.Context, _ *Session) error {
	return nil
}

func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	if ok {
		// Requests still holding the pointer see a logged-out session.
		s.Clear()
	}
	return nil
}

func (m *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			removed++
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	if removed > 0 {
		log.LogDebug("Removed %d expired sessions, %d remaining", removed, len(m.sessions))
	}
	return removed, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) expired(s *Session) bool {
	s.mu.Lock()
	last := s.LastSeen
	s.mu.Unlock()
	return time.Since(last) > m.ttl
}

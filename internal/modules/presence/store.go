package presence

import (
	"sort"
	"sync"
	"time"
)

// Store holds session records. Every method is atomic with respect to a single
// session record; no cross-session locking is required by callers.
//
// The registry owns session records exclusively. The interface exists so tests
// can substitute a failing store and exercise the ErrStorageUnavailable path.
type Store interface {
	// Insert adds a new session. Returns ErrDuplicateSession if the id is taken.
	Insert(s Session) error
	// Touch updates lastHeartbeat and, when status is non-empty, localStatus.
	// Returns ErrUnknownSession if the session no longer exists.
	Touch(id string, status Status, at time.Time) (Session, error)
	// Delete removes a session. The bool reports whether it existed.
	Delete(id string) (Session, bool, error)
	// DeleteIfStale removes the session only if its lastHeartbeat is still
	// before cutoff at the moment of deletion. A heartbeat that landed after
	// the caller took its snapshot keeps the session alive.
	DeleteIfStale(id string, cutoff time.Time) (Session, bool, error)
	// ByUser returns a snapshot of all sessions owned by userID.
	ByUser(userID string) ([]Session, error)
	// All returns a snapshot of every session.
	All() ([]Session, error)
}

// memoryStore is the default Store: a mutex-guarded map with a per-user
// reverse index. Session records are ephemeral and need not survive restarts.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	byUser   map[string]map[string]struct{}
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string]Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (m *memoryStore) Insert(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return ErrDuplicateSession
	}
	m.sessions[s.ID] = s
	if m.byUser[s.UserID] == nil {
		m.byUser[s.UserID] = make(map[string]struct{})
	}
	m.byUser[s.UserID][s.ID] = struct{}{}
	return nil
}

func (m *memoryStore) Touch(id string, status Status, at time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrUnknownSession
	}
	s.LastHeartbeat = at
	if status != "" {
		s.LocalStatus = status
	}
	m.sessions[id] = s
	return s, nil
}

func (m *memoryStore) Delete(id string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *memoryStore) DeleteIfStale(id string, cutoff time.Time) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || !s.LastHeartbeat.Before(cutoff) {
		return Session{}, false, nil
	}
	return m.deleteLocked(id)
}

func (m *memoryStore) deleteLocked(id string) (Session, bool, error) {
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false, nil
	}
	delete(m.sessions, id)
	if owned, ok := m.byUser[s.UserID]; ok {
		delete(owned, id)
		if len(owned) == 0 {
			delete(m.byUser, s.UserID)
		}
	}
	return s, true, nil
}

func (m *memoryStore) ByUser(userID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byUser[userID]
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]Session, 0, len(ids))
	for id := range ids {
		out = append(out, m.sessions[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) All() ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

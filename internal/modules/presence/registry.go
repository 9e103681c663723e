package presence

import (
	"fmt"
	"time"
)

// Registry is the session registry: it owns one ephemeral record per
// (user, session) pair. All mutations flow through it so that the change hook
// fires for every register, heartbeat, deregister and staleness removal.
type Registry struct {
	store    Store
	clock    Clock
	onChange func(userID string)
}

// NewRegistry creates a registry over the given store. The onChange hook is
// invoked (synchronously, outside any store lock) with the affected user id
// after every successful mutation; pass nil to disable.
func NewRegistry(store Store, clock Clock, onChange func(userID string)) *Registry {
	if clock == nil {
		clock = time.Now
	}
	if onChange == nil {
		onChange = func(string) {}
	}
	return &Registry{store: store, clock: clock, onChange: onChange}
}

// Register creates a session with localStatus online and a fresh heartbeat.
// Returns ErrDuplicateSession if the session id is already registered.
func (r *Registry) Register(userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return fmt.Errorf("presence: register requires user id and session id")
	}
	now := r.clock()
	err := r.store.Insert(Session{
		ID:            sessionID,
		UserID:        userID,
		LocalStatus:   StatusOnline,
		LastHeartbeat: now,
		RegisteredAt:  now,
	})
	if err != nil {
		return err
	}
	r.onChange(userID)
	return nil
}

// Heartbeat refreshes lastHeartbeat and optionally moves the session between
// online and away. Returns ErrUnknownSession when the session was already
// expired or removed; the caller must re-register with a fresh id.
func (r *Registry) Heartbeat(sessionID string, status Status) error {
	if status != "" && !status.ValidLocal() {
		return fmt.Errorf("presence: invalid heartbeat status %q", status)
	}
	s, err := r.store.Touch(sessionID, status, r.clock())
	if err != nil {
		return err
	}
	r.onChange(s.UserID)
	return nil
}

// Deregister removes the session immediately (the graceful path). Idempotent:
// removing an already-removed session reports removed=false with no error.
func (r *Registry) Deregister(sessionID string) (Session, bool, error) {
	s, removed, err := r.store.Delete(sessionID)
	if err != nil {
		return Session{}, false, err
	}
	if removed {
		r.onChange(s.UserID)
	}
	return s, removed, nil
}

// SessionsFor returns a read-only snapshot of userID's live sessions.
func (r *Registry) SessionsFor(userID string) ([]Session, error) {
	return r.store.ByUser(userID)
}

// Snapshot returns every live session. Used by the liveness sweep.
func (r *Registry) Snapshot() ([]Session, error) {
	return r.store.All()
}

// expireStale removes sessionID exactly as Deregister would, but only if its
// heartbeat is still older than cutoff at delete time. A concurrent heartbeat
// arriving mid-sweep is evidence the session is alive and wins over the
// sweep's stale judgement.
func (r *Registry) expireStale(sessionID string, cutoff time.Time) (Session, bool, error) {
	s, removed, err := r.store.DeleteIfStale(sessionID, cutoff)
	if err != nil {
		return Session{}, false, err
	}
	if removed {
		r.onChange(s.UserID)
	}
	return s, removed, nil
}

package presence

import (
	"errors"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

// failingStore returns ErrStorageUnavailable from every method.
type failingStore struct{}

func (failingStore) Insert(Session) error { return ErrStorageUnavailable }
func (failingStore) Touch(string, Status, time.Time) (Session, error) {
	return Session{}, ErrStorageUnavailable
}
func (failingStore) Delete(string) (Session, bool, error) {
	return Session{}, false, ErrStorageUnavailable
}
func (failingStore) DeleteIfStale(string, time.Time) (Session, bool, error) {
	return Session{}, false, ErrStorageUnavailable
}
func (failingStore) ByUser(string) ([]Session, error) { return nil, ErrStorageUnavailable }
func (failingStore) All() ([]Session, error)          { return nil, ErrStorageUnavailable }

func TestRegistryRegisterAndLookup(t *testing.T) {
	clock := newFakeClock()
	var changed []string
	reg := NewRegistry(NewMemoryStore(), clock.Now, func(uid string) { changed = append(changed, uid) })

	if err := reg.Register("alice", "s1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sessions, err := reg.SessionsFor("alice")
	if err != nil {
		t.Fatalf("SessionsFor: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	s := sessions[0]
	if s.LocalStatus != StatusOnline {
		t.Errorf("new session status = %v, want online", s.LocalStatus)
	}
	if !s.LastHeartbeat.Equal(clock.Now()) || !s.RegisteredAt.Equal(clock.Now()) {
		t.Errorf("timestamps not stamped from clock: %+v", s)
	}
	if len(changed) != 1 || changed[0] != "alice" {
		t.Errorf("change hook calls = %v, want [alice]", changed)
	}
}

func TestRegistryDuplicateSessionID(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), newFakeClock().Now, nil)
	if err := reg.Register("alice", "s1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := reg.Register("bob", "s1")
	if !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("second Register err = %v, want ErrDuplicateSession", err)
	}
	// Existing binding untouched.
	sessions, _ := reg.SessionsFor("alice")
	if len(sessions) != 1 {
		t.Errorf("alice sessions = %d, want 1", len(sessions))
	}
	if got, _ := reg.SessionsFor("bob"); len(got) != 0 {
		t.Errorf("bob gained a session from a rejected register")
	}
}

func TestRegistryHeartbeat(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(NewMemoryStore(), clock.Now, nil)
	if err := reg.Register("alice", "s1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	clock.Advance(20 * time.Second)
	if err := reg.Heartbeat("s1", StatusAway); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	sessions, _ := reg.SessionsFor("alice")
	if sessions[0].LocalStatus != StatusAway {
		t.Errorf("status after away heartbeat = %v", sessions[0].LocalStatus)
	}
	if !sessions[0].LastHeartbeat.Equal(clock.Now()) {
		t.Errorf("lastHeartbeat not refreshed")
	}

	// Empty status refreshes the timestamp only.
	clock.Advance(20 * time.Second)
	if err := reg.Heartbeat("s1", ""); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	sessions, _ = reg.SessionsFor("alice")
	if sessions[0].LocalStatus != StatusAway {
		t.Errorf("empty-status heartbeat changed status to %v", sessions[0].LocalStatus)
	}

	if err := reg.Heartbeat("s1", StatusOffline); err == nil {
		t.Error("heartbeat accepted offline as a local status")
	}
	if err := reg.Heartbeat("nope", StatusOnline); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("unknown session err = %v, want ErrUnknownSession", err)
	}
}

func TestRegistryDeregisterIdempotent(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), newFakeClock().Now, nil)
	if err := reg.Register("alice", "s1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, removed, err := reg.Deregister("s1")
	if err != nil || !removed {
		t.Fatalf("first Deregister = (%v, %v)", removed, err)
	}
	_, removed, err = reg.Deregister("s1")
	if err != nil {
		t.Fatalf("second Deregister errored: %v", err)
	}
	if removed {
		t.Error("second Deregister reported removal")
	}
}

func TestRegistryMultipleSessionsPerUser(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), newFakeClock().Now, nil)
	for _, id := range []string{"s1", "s2", "s3"} {
		if err := reg.Register("alice", id); err != nil {
			t.Fatalf("Register %s: %v", id, err)
		}
	}
	sessions, _ := reg.SessionsFor("alice")
	if len(sessions) != 3 {
		t.Fatalf("got %d sessions, want 3", len(sessions))
	}

	reg.Deregister("s2")
	sessions, _ = reg.SessionsFor("alice")
	if len(sessions) != 2 {
		t.Fatalf("after deregister got %d sessions, want 2", len(sessions))
	}
	for _, s := range sessions {
		if s.ID == "s2" {
			t.Error("deregistered session still listed")
		}
	}
}

func TestRegistryStorageUnavailable(t *testing.T) {
	reg := NewRegistry(failingStore{}, newFakeClock().Now, nil)
	if err := reg.Register("alice", "s1"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Register err = %v, want ErrStorageUnavailable", err)
	}
	if err := reg.Heartbeat("s1", StatusOnline); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Heartbeat err = %v, want ErrStorageUnavailable", err)
	}
	if _, _, err := reg.Deregister("s1"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Deregister err = %v, want ErrStorageUnavailable", err)
	}
}

func TestMemoryStoreDeleteIfStale(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	err := store.Insert(Session{ID: "s1", UserID: "alice", LocalStatus: StatusOnline, LastHeartbeat: clock.Now()})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Heartbeat after the cutoff was computed keeps the session.
	cutoff := clock.Now().Add(time.Second)
	if _, err := store.Touch("s1", "", clock.Now().Add(2*time.Second)); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if _, removed, _ := store.DeleteIfStale("s1", cutoff); removed {
		t.Fatal("DeleteIfStale removed a session whose heartbeat moved past the cutoff")
	}

	// A genuinely stale heartbeat is removed.
	if _, removed, _ := store.DeleteIfStale("s1", clock.Now().Add(time.Minute)); !removed {
		t.Fatal("DeleteIfStale kept a stale session")
	}
	if _, removed, _ := store.DeleteIfStale("s1", clock.Now().Add(time.Minute)); removed {
		t.Fatal("DeleteIfStale removed a session twice")
	}
}

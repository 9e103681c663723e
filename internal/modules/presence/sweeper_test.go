package presence

import (
	"context"
	"testing"
	"time"
)

func TestSweepRemovesStaleSessions(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(NewMemoryStore(), clock.Now, nil)
	var expired []Session
	sw := NewSweeper(reg, 45*time.Second, clock.Now, nil, func(s Session) { expired = append(expired, s) })

	if err := reg.Register("alice", "s1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register("bob", "s2"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// bob keeps beating, alice's client crashed.
	clock.Advance(30 * time.Second)
	if err := reg.Heartbeat("s2", StatusOnline); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	clock.Advance(30 * time.Second)

	if err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	if got, _ := reg.SessionsFor("alice"); len(got) != 0 {
		t.Error("stale session survived the sweep")
	}
	if got, _ := reg.SessionsFor("bob"); len(got) != 1 {
		t.Error("live session was swept")
	}
	if len(expired) != 1 || expired[0].UserID != "alice" {
		t.Errorf("expired callback got %+v, want alice's session", expired)
	}
}

// A crashed client is detected within one threshold plus one sweep interval:
// stale threshold 45s, sweep every 15s, so the worst case is just under 60s.
func TestSweepDetectionWindowAfterCrash(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(NewMemoryStore(), clock.Now, nil)
	sw := NewSweeper(reg, 45*time.Second, clock.Now, nil, nil)

	if err := reg.Register("alice", "s1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Sweeps at 15s, 30s, 45s must all keep the session: the last heartbeat
	// is not yet older than the threshold.
	for i := 0; i < 3; i++ {
		clock.Advance(15 * time.Second)
		if err := sw.SweepOnce(context.Background()); err != nil {
			t.Fatalf("SweepOnce: %v", err)
		}
		if got, _ := reg.SessionsFor("alice"); len(got) != 1 {
			t.Fatalf("session removed prematurely at %s since crash", time.Duration(i+1)*15*time.Second)
		}
	}

	// The sweep at 60s crosses the threshold.
	clock.Advance(15 * time.Second)
	if err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if got, _ := reg.SessionsFor("alice"); len(got) != 0 {
		t.Error("session not removed within one threshold plus one sweep interval")
	}
}

func TestSweepConcurrentHeartbeatWins(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	reg := NewRegistry(store, clock.Now, nil)
	sw := NewSweeper(reg, 45*time.Second, clock.Now, nil, nil)

	if err := reg.Register("alice", "s1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	clock.Advance(60 * time.Second)

	// Simulate a heartbeat landing between the sweep's snapshot and its
	// delete: refresh directly before the per-session expiry check runs.
	if err := reg.Heartbeat("s1", StatusOnline); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if got, _ := reg.SessionsFor("alice"); len(got) != 1 {
		t.Error("sweep removed a session that heartbeated after the cutoff")
	}
}

// A crashed client end to end: its session goes stale, the sweep removes it,
// and a subscriber watching the user receives exactly one offline event.
func TestSweepPublishesSingleOffline(t *testing.T) {
	reg, pub, clock := testPublisher(t)
	sw := NewSweeper(reg, 45*time.Second, clock.Now, nil, nil)

	if err := reg.Register("alice", "s1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sub := pub.Subscribe("viewer", []string{"alice"})
	defer sub.Close()
	drain(sub.Events())

	clock.Advance(60 * time.Second)
	if err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	events := drain(sub.Events())
	if len(events) != 1 || events[0].Status != StatusOffline {
		t.Fatalf("sweep emitted %+v, want exactly one offline", events)
	}
	if got, _ := reg.SessionsFor("alice"); len(got) != 0 {
		t.Error("stale session survived the sweep")
	}

	// The next sweep finds nothing and publishes nothing.
	clock.Advance(15 * time.Second)
	if err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if events := drain(sub.Events()); len(events) != 0 {
		t.Fatalf("idle sweep emitted %+v", events)
	}
}

func TestSweepStorageErrorAbortsPass(t *testing.T) {
	reg := NewRegistry(failingStore{}, newFakeClock().Now, nil)
	sw := NewSweeper(reg, 45*time.Second, newFakeClock().Now, nil, nil)
	if err := sw.SweepOnce(context.Background()); err == nil {
		t.Fatal("SweepOnce succeeded against a failing store")
	}
}

func TestSweepHonorsContext(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(NewMemoryStore(), clock.Now, nil)
	sw := NewSweeper(reg, 45*time.Second, clock.Now, nil, nil)

	if err := reg.Register("alice", "s1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sw.SweepOnce(ctx); err == nil {
		t.Fatal("SweepOnce ignored a cancelled context")
	}
}

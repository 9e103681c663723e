package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeIngestor records calls and lets tests inject per-call errors.
type fakeIngestor struct {
	mu          sync.Mutex
	registered  map[string]string // sessionID -> userID
	heartbeats  []Status
	deregisters []string
	registerErr []error // popped per call
	beatErr     []error
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{registered: make(map[string]string)}
}

func (f *fakeIngestor) Register(_ context.Context, userID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.registerErr) > 0 {
		err := f.registerErr[0]
		f.registerErr = f.registerErr[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := f.registered[sessionID]; ok {
		return ErrDuplicateSession
	}
	f.registered[sessionID] = userID
	return nil
}

func (f *fakeIngestor) Heartbeat(_ context.Context, sessionID string, status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.beatErr) > 0 {
		err := f.beatErr[0]
		f.beatErr = f.beatErr[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := f.registered[sessionID]; !ok {
		return ErrUnknownSession
	}
	f.heartbeats = append(f.heartbeats, status)
	return nil
}

func (f *fakeIngestor) Deregister(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, sessionID)
	f.deregisters = append(f.deregisters, sessionID)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestAgentLifecycle(t *testing.T) {
	ing := newFakeIngestor()
	agent := NewAgent("alice", ing, 10*time.Millisecond, nil)

	if agent.State() != AgentConnecting {
		t.Fatalf("initial state = %v, want connecting", agent.State())
	}

	done := make(chan struct{})
	go func() { agent.Run(context.Background()); close(done) }()

	waitFor(t, func() bool { return agent.State() == AgentOnline })
	sid := agent.SessionID()
	if sid == "" {
		t.Fatal("no session id after registration")
	}

	waitFor(t, func() bool {
		ing.mu.Lock()
		defer ing.mu.Unlock()
		return len(ing.heartbeats) >= 2
	})

	agent.Close()
	<-done

	if agent.State() != AgentTerminated {
		t.Errorf("state after Close = %v, want terminated", agent.State())
	}
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if len(ing.deregisters) != 1 || ing.deregisters[0] != sid {
		t.Errorf("deregisters = %v, want [%s]", ing.deregisters, sid)
	}
}

func TestAgentVisibilityTransitions(t *testing.T) {
	ing := newFakeIngestor()
	agent := NewAgent("alice", ing, time.Hour, nil) // timer never fires; kicks drive beats

	done := make(chan struct{})
	go func() { agent.Run(context.Background()); close(done) }()
	waitFor(t, func() bool { return agent.State() == AgentOnline })

	agent.SetVisible(false)
	waitFor(t, func() bool { return agent.State() == AgentAway })
	waitFor(t, func() bool {
		ing.mu.Lock()
		defer ing.mu.Unlock()
		return len(ing.heartbeats) > 0 && ing.heartbeats[len(ing.heartbeats)-1] == StatusAway
	})

	agent.SetVisible(true)
	waitFor(t, func() bool { return agent.State() == AgentOnline })
	waitFor(t, func() bool {
		ing.mu.Lock()
		defer ing.mu.Unlock()
		return ing.heartbeats[len(ing.heartbeats)-1] == StatusOnline
	})

	agent.Close()
	<-done
}

func TestAgentRecoversFromUnknownSession(t *testing.T) {
	ing := newFakeIngestor()
	agent := NewAgent("alice", ing, 5*time.Millisecond, nil)

	done := make(chan struct{})
	go func() { agent.Run(context.Background()); close(done) }()
	waitFor(t, func() bool { return agent.SessionID() != "" })
	first := agent.SessionID()

	// Server-side expiry: the session vanishes under the agent.
	ing.mu.Lock()
	delete(ing.registered, first)
	ing.mu.Unlock()

	// The next heartbeat fails with unknown session; the agent must
	// re-register under a fresh id.
	waitFor(t, func() bool {
		sid := agent.SessionID()
		return sid != "" && sid != first
	})

	agent.Close()
	<-done
}

func TestAgentRegeneratesOnDuplicate(t *testing.T) {
	ing := newFakeIngestor()
	ing.registerErr = []error{ErrDuplicateSession, ErrDuplicateSession}

	agent := NewAgent("alice", ing, time.Hour, nil)
	done := make(chan struct{})
	go func() { agent.Run(context.Background()); close(done) }()

	waitFor(t, func() bool { return agent.State() == AgentOnline })
	if agent.SessionID() == "" {
		t.Fatal("agent never registered past duplicate rejections")
	}

	agent.Close()
	<-done
}

func TestAgentRetriesTransientRegisterFailure(t *testing.T) {
	ing := newFakeIngestor()
	ing.registerErr = []error{fmt.Errorf("transport: %w", ErrStorageUnavailable)}

	agent := NewAgent("alice", ing, 5*time.Millisecond, nil)
	done := make(chan struct{})
	go func() { agent.Run(context.Background()); close(done) }()

	waitFor(t, func() bool { return agent.State() == AgentOnline })

	agent.Close()
	<-done
}

func TestAgentBackgroundedAtStartup(t *testing.T) {
	ing := newFakeIngestor()
	agent := NewAgent("alice", ing, time.Hour, nil)
	agent.SetVisible(false)

	done := make(chan struct{})
	go func() { agent.Run(context.Background()); close(done) }()

	// Registration lands online server-side; the agent reconciles to away
	// with an immediate heartbeat.
	waitFor(t, func() bool { return agent.State() == AgentAway })
	waitFor(t, func() bool {
		ing.mu.Lock()
		defer ing.mu.Unlock()
		return len(ing.heartbeats) > 0 && ing.heartbeats[0] == StatusAway
	})

	agent.Close()
	<-done
}

func TestAgentContextCancelDeregisters(t *testing.T) {
	ing := newFakeIngestor()
	agent := NewAgent("alice", ing, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { agent.Run(ctx); close(done) }()
	waitFor(t, func() bool { return agent.SessionID() != "" })

	cancel()
	<-done

	ing.mu.Lock()
	defer ing.mu.Unlock()
	if len(ing.deregisters) != 1 {
		t.Errorf("deregisters = %v, want exactly one", ing.deregisters)
	}
}

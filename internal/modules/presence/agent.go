package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ingestor is the ingestion surface of the presence service as seen by a
// client session agent: register, heartbeat, deregister. Implemented by
// *Service in-process and by any transport client out-of-process.
type Ingestor interface {
	Register(ctx context.Context, userID, sessionID string) error
	Heartbeat(ctx context.Context, sessionID string, status Status) error
	Deregister(ctx context.Context, sessionID string) error
}

// AgentState is the lifecycle state of a client session agent.
type AgentState string

const (
	AgentConnecting AgentState = "connecting"
	AgentOnline     AgentState = "online"
	AgentAway       AgentState = "away"
	AgentTerminated AgentState = "terminated"
)

const deregisterTimeout = 2 * time.Second

// Agent drives one session on behalf of a connected client: it registers,
// emits heartbeats on a timer, reacts to visibility changes with an immediate
// heartbeat, and deregisters on graceful exit. Recovery from
// ErrUnknownSession or ErrDuplicateSession always mints a fresh session id and
// restarts at connecting; it never retries an ambiguous identifier. If the
// graceful path never runs, the server-side liveness sweep is the fallback.
type Agent struct {
	userID   string
	ing      Ingestor
	interval time.Duration
	newID    func() string
	logger   *zap.Logger

	mu        sync.Mutex
	state     AgentState
	sessionID string
	visible   bool

	kick chan struct{}
	stop chan struct{}
	once sync.Once
}

// NewAgent builds an agent for userID sending heartbeats every interval.
// The interval must be well under the server's staleness threshold so one
// dropped heartbeat does not read as a disconnect.
func NewAgent(userID string, ing Ingestor, interval time.Duration, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		userID:   userID,
		ing:      ing,
		interval: interval,
		newID:    uuid.NewString,
		logger:   logger,
		state:    AgentConnecting,
		visible:  true,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SessionID returns the current session id ("" while connecting).
func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// SetVisible records a visibility change (tab focused or backgrounded) and
// pushes an immediate heartbeat rather than waiting for the next tick.
func (a *Agent) SetVisible(visible bool) {
	a.mu.Lock()
	if a.state == AgentTerminated {
		a.mu.Unlock()
		return
	}
	a.visible = visible
	if a.state == AgentOnline || a.state == AgentAway {
		if visible {
			a.state = AgentOnline
		} else {
			a.state = AgentAway
		}
	}
	a.mu.Unlock()

	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Run drives the agent until ctx is cancelled or Close is called. On exit it
// attempts a best-effort deregister; a failure there is fine, the liveness
// sweep covers it.
func (a *Agent) Run(ctx context.Context) {
	defer a.terminate()

	for {
		if a.State() == AgentTerminated {
			return
		}
		if !a.ensureRegistered(ctx) {
			return
		}

		timer := time.NewTimer(a.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-a.stop:
			timer.Stop()
			return
		case <-a.kick:
			timer.Stop()
		case <-timer.C:
		}
		a.beat(ctx)
	}
}

// Close terminates the agent from outside Run. Safe to call more than once.
func (a *Agent) Close() {
	a.once.Do(func() { close(a.stop) })
}

// ensureRegistered registers a fresh session if none is active. Returns false
// only when ctx ended.
func (a *Agent) ensureRegistered(ctx context.Context) bool {
	for {
		if a.SessionID() != "" {
			return true
		}
		id := a.newID()
		err := a.ing.Register(ctx, a.userID, id)
		switch {
		case err == nil:
			a.mu.Lock()
			a.sessionID = id
			if a.visible {
				a.state = AgentOnline
			} else {
				a.state = AgentAway
			}
			visible := a.visible
			a.mu.Unlock()
			if !visible {
				// Registration always lands online; reconcile right away.
				a.beat(ctx)
			}
			return true
		case errors.Is(err, ErrDuplicateSession):
			// Identifier collision: next iteration mints a new one.
			a.logger.Debug("duplicate session id, regenerating", zap.String("user_id", a.userID))
			continue
		default:
			a.logger.Warn("presence register failed, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return false
			case <-a.stop:
				return false
			case <-time.After(a.interval):
			}
		}
	}
}

func (a *Agent) beat(ctx context.Context) {
	a.mu.Lock()
	id := a.sessionID
	status := StatusOnline
	if !a.visible {
		status = StatusAway
	}
	a.mu.Unlock()
	if id == "" {
		return
	}

	err := a.ing.Heartbeat(ctx, id, status)
	if err == nil {
		return
	}
	if errors.Is(err, ErrUnknownSession) {
		// Expected race after a sweep removal: restart at connecting with a
		// fresh identifier.
		a.mu.Lock()
		a.sessionID = ""
		if a.state != AgentTerminated {
			a.state = AgentConnecting
		}
		a.mu.Unlock()
		return
	}
	a.logger.Warn("presence heartbeat failed", zap.Error(err))
}

func (a *Agent) terminate() {
	a.mu.Lock()
	id := a.sessionID
	a.sessionID = ""
	a.state = AgentTerminated
	a.mu.Unlock()
	if id == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deregisterTimeout)
	defer cancel()
	if err := a.ing.Deregister(ctx, id); err != nil {
		a.logger.Debug("graceful deregister failed, sweep will cover it", zap.Error(err))
	}
}

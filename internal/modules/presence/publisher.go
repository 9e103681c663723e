package presence

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one change of a user's aggregate status.
type Event struct {
	UserID   string    `json:"userId"`
	Status   Status    `json:"status"`
	At       time.Time `json:"at"`
	Snapshot bool      `json:"snapshot,omitempty"`
}

// Fanout carries events to sibling server instances. Implemented by the Redis
// bridge; nil disables cross-instance delivery.
type Fanout interface {
	Publish(ev Event) error
}

// subscriberSlack is the headroom each subscription buffer has beyond its
// snapshot size. A subscriber that falls further behind than this gets a
// resynchronization snapshot instead of an unbounded replay queue.
const subscriberSlack = 16

// Publisher converts registry mutations into a de-duplicated stream of
// (userID, status) events. It caches the last-published status per user so a
// burst of heartbeats that does not change the aggregate produces no event,
// and guarantees per-user ordering by emitting under a single lock.
type Publisher struct {
	mu     sync.Mutex
	last   map[string]Status
	subs   map[*Subscription]struct{}
	lookup func(userID string) ([]Session, error)
	clock  Clock
	logger *zap.Logger
	fanout Fanout
}

// NewPublisher builds a publisher. lookup resolves a user's current sessions
// (normally Registry.SessionsFor); it is called with the publisher lock held
// and must not call back into the publisher.
func NewPublisher(lookup func(userID string) ([]Session, error), clock Clock, logger *zap.Logger) *Publisher {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		last:   make(map[string]Status),
		subs:   make(map[*Subscription]struct{}),
		lookup: lookup,
		clock:  clock,
		logger: logger,
	}
}

// SetFanout attaches the cross-instance bridge. Call before serving traffic.
func (p *Publisher) SetFanout(f Fanout) { p.fanout = f }

// Notify recomputes userID's aggregate and, when it differs from the last
// published value, emits an event to every live subscription and to the
// fan-out. A storage failure publishes nothing: the publisher fails closed
// rather than pushing a stale or incorrect aggregate.
//
// The lookup runs under the publisher lock so the read and the cache update
// are one atomic step. Two racing mutations for the same user otherwise
// interleave so that an older lookup result lands in the cache last, and a
// user whose final session is gone stays cached as online with nothing left
// to ever correct it.
func (p *Publisher) Notify(userID string) {
	p.mu.Lock()
	sessions, err := p.lookup(userID)
	if err != nil {
		p.mu.Unlock()
		p.logger.Warn("presence publish skipped, store unavailable",
			zap.String("user_id", userID), zap.Error(err))
		return
	}
	ev, changed := p.recordLocked(userID, AggregateSessions(sessions))
	if changed {
		for sub := range p.subs {
			p.deliverLocked(sub, ev)
		}
	}
	p.mu.Unlock()

	if changed && p.fanout != nil {
		if err := p.fanout.Publish(ev); err != nil {
			p.logger.Warn("presence fan-out publish failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// HandleRemote delivers an event computed by a sibling instance to local
// subscribers. It is not re-published to the fan-out.
func (p *Publisher) HandleRemote(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Status == StatusOffline {
		delete(p.last, ev.UserID)
	} else {
		p.last[ev.UserID] = ev.Status
	}
	for sub := range p.subs {
		p.deliverLocked(sub, ev)
	}
}

// recordLocked updates the last-published cache and reports whether the
// aggregate actually changed. Users whose aggregate is offline are dropped
// from the cache so it only grows with currently-connected users; an unseen
// offline user produces no event.
func (p *Publisher) recordLocked(userID string, agg Status) (Event, bool) {
	prev, seen := p.last[userID]
	if seen && prev == agg {
		return Event{}, false
	}
	if !seen && agg == StatusOffline {
		return Event{}, false
	}
	if agg == StatusOffline {
		delete(p.last, userID)
	} else {
		p.last[userID] = agg
	}
	return Event{UserID: userID, Status: agg, At: p.clock()}, true
}

// statusLocked returns the current aggregate for snapshots, preferring the
// publish cache and falling back to a registry lookup for users this instance
// has not published yet.
func (p *Publisher) statusLocked(userID string) Status {
	if st, ok := p.last[userID]; ok {
		return st
	}
	sessions, err := p.lookup(userID)
	if err != nil {
		return StatusUnknown
	}
	return AggregateSessions(sessions)
}

func (p *Publisher) deliverLocked(sub *Subscription, ev Event) {
	if !sub.watching(ev.UserID) {
		return
	}
	select {
	case sub.ch <- ev:
	default:
		// Subscriber is not keeping up. Drop the backlog and hand it the
		// latest aggregate state, which subsumes every missed delta.
		p.resyncLocked(sub)
	}
}

// resyncLocked empties sub's buffer and refills it with a snapshot of the
// whole watch set. The buffer is sized to always fit a full snapshot.
func (p *Publisher) resyncLocked(sub *Subscription) {
	for {
		select {
		case <-sub.ch:
		default:
			p.snapshotLocked(sub)
			p.logger.Debug("subscriber overloaded, resynchronized",
				zap.String("viewer_id", sub.viewerID))
			return
		}
	}
}

func (p *Publisher) snapshotLocked(sub *Subscription) {
	now := p.clock()
	for _, uid := range sub.order {
		select {
		case sub.ch <- Event{UserID: uid, Status: p.statusLocked(uid), At: now, Snapshot: true}:
		default:
			// Cannot happen with a drained, snapshot-sized buffer.
			return
		}
	}
}

package presence

import "sync"

// Subscription is a viewer's stream of status changes for a fixed set of user
// ids. The current aggregate of every watched user is delivered first as a
// snapshot, then deltas follow. Delivery is at-least-once with per-user
// ordering; a torn-down reader simply calls Close and the next Subscribe gets
// a fresh snapshot that subsumes anything missed.
type Subscription struct {
	viewerID string
	watch    map[string]struct{}
	order    []string
	ch       chan Event
	pub      *Publisher
	closed   sync.Once
}

// Subscribe opens a feed for viewerID over the given user ids. Duplicate ids
// are collapsed. The caller must drain Events until it is closed, and must
// call Close when done so the registration does not leak.
func (p *Publisher) Subscribe(viewerID string, userIDs []string) *Subscription {
	watch := make(map[string]struct{}, len(userIDs))
	order := make([]string, 0, len(userIDs))
	for _, uid := range userIDs {
		if uid == "" {
			continue
		}
		if _, ok := watch[uid]; ok {
			continue
		}
		watch[uid] = struct{}{}
		order = append(order, uid)
	}

	sub := &Subscription{
		viewerID: viewerID,
		watch:    watch,
		order:    order,
		ch:       make(chan Event, len(order)+subscriberSlack),
		pub:      p,
	}

	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.snapshotLocked(sub)
	p.mu.Unlock()
	return sub
}

// Events is the delivery channel. Closed by Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// ViewerID identifies the subscriber this feed belongs to.
func (s *Subscription) ViewerID() string { return s.viewerID }

// Close releases the subscription and closes the event channel. Idempotent;
// effective immediately for new events. Events already buffered are discarded
// with no redelivery obligation.
func (s *Subscription) Close() {
	s.closed.Do(func() {
		s.pub.mu.Lock()
		delete(s.pub.subs, s)
		// Empty the buffer before closing so a late reader observes the
		// close, not leftover events. Delivery holds the same lock, so no
		// new event can land mid-drain.
		for {
			select {
			case <-s.ch:
				continue
			default:
			}
			break
		}
		close(s.ch)
		s.pub.mu.Unlock()
	})
}

func (s *Subscription) watching(userID string) bool {
	_, ok := s.watch[userID]
	return ok
}

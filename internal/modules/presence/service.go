package presence

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LastSeenRecorder persists the durable "last seen" timestamp, written once
// per session termination. The read path ("last seen 2h ago" in the UI) is an
// external collaborator; this is the only write.
type LastSeenRecorder interface {
	RecordLastSeen(ctx context.Context, userID string, at time.Time) error
}

const lastSeenWriteTimeout = 5 * time.Second

// Options carries the presence timing knobs. StaleThreshold must be more than
// twice the client heartbeat interval or normal jitter reads as a disconnect;
// config validation enforces that before a Service is ever built.
type Options struct {
	StaleThreshold time.Duration
	SweepInterval  time.Duration
}

// Service wires the session registry, status aggregation, liveness sweep and
// change publisher into one owned component instance. It implements Ingestor
// so in-process agents and the transport handlers share one entry point.
type Service struct {
	reg      *Registry
	pub      *Publisher
	sweeper  *Sweeper
	clock    Clock
	logger   *zap.Logger
	lastSeen LastSeenRecorder
}

// Option customizes a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	store    Store
	clock    Clock
	lastSeen LastSeenRecorder
	fanout   Fanout
}

// WithStore substitutes the session store (tests inject failing stores here).
func WithStore(s Store) Option { return func(c *serviceConfig) { c.store = s } }

// WithClock substitutes the time source.
func WithClock(clock Clock) Option { return func(c *serviceConfig) { c.clock = clock } }

// WithLastSeenRecorder enables durable last-seen writes on session termination.
func WithLastSeenRecorder(r LastSeenRecorder) Option {
	return func(c *serviceConfig) { c.lastSeen = r }
}

// WithFanout attaches cross-instance event delivery.
func WithFanout(f Fanout) Option { return func(c *serviceConfig) { c.fanout = f } }

// NewService builds a presence service with the given timing options.
func NewService(opts Options, logger *zap.Logger, extra ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := serviceConfig{store: NewMemoryStore(), clock: time.Now}
	for _, o := range extra {
		o(&cfg)
	}

	svc := &Service{clock: cfg.clock, logger: logger, lastSeen: cfg.lastSeen}

	svc.reg = NewRegistry(cfg.store, cfg.clock, func(userID string) {
		svc.pub.Notify(userID)
	})
	svc.pub = NewPublisher(svc.reg.SessionsFor, cfg.clock, logger.Named("presence-publisher"))
	if cfg.fanout != nil {
		svc.pub.SetFanout(cfg.fanout)
	}
	svc.sweeper = NewSweeper(svc.reg, opts.StaleThreshold, cfg.clock, logger.Named("presence-sweep"), func(s Session) {
		svc.recordTermination(s.UserID)
	})
	return svc
}

// Register implements Ingestor.
func (s *Service) Register(ctx context.Context, userID, sessionID string) error {
	_ = ctx
	return s.reg.Register(userID, sessionID)
}

// Heartbeat implements Ingestor.
func (s *Service) Heartbeat(ctx context.Context, sessionID string, status Status) error {
	_ = ctx
	return s.reg.Heartbeat(sessionID, status)
}

// Deregister implements Ingestor. Idempotent: deregistering an already-removed
// session is not an error.
func (s *Service) Deregister(ctx context.Context, sessionID string) error {
	_ = ctx
	sess, removed, err := s.reg.Deregister(sessionID)
	if err != nil {
		return err
	}
	if removed {
		s.recordTermination(sess.UserID)
	}
	return nil
}

// GetStatus returns userID's aggregate status. While the backing store is
// unavailable it degrades to unknown rather than reporting an incorrect
// offline.
func (s *Service) GetStatus(userID string) Status {
	sessions, err := s.reg.SessionsFor(userID)
	if err != nil {
		s.logger.Warn("presence status degraded to unknown",
			zap.String("user_id", userID), zap.Error(err))
		return StatusUnknown
	}
	return AggregateSessions(sessions)
}

// Statuses resolves the aggregate for a batch of user ids.
func (s *Service) Statuses(userIDs []string) map[string]Status {
	out := make(map[string]Status, len(userIDs))
	for _, uid := range userIDs {
		if uid == "" {
			continue
		}
		out[uid] = s.GetStatus(uid)
	}
	return out
}

// SessionsFor exposes a read-only snapshot of a user's sessions.
func (s *Service) SessionsFor(userID string) ([]Session, error) {
	return s.reg.SessionsFor(userID)
}

// Sessions exposes a read-only snapshot of every live session.
func (s *Service) Sessions() ([]Session, error) {
	return s.reg.Snapshot()
}

// Subscribe opens a per-viewer feed: snapshot first, then deltas restricted to
// the watched set.
func (s *Service) Subscribe(viewerID string, userIDs []string) *Subscription {
	return s.pub.Subscribe(viewerID, userIDs)
}

// HandleRemote ingests a fan-out event from a sibling instance.
func (s *Service) HandleRemote(ev Event) {
	s.pub.HandleRemote(ev)
}

// SweepOnce runs one liveness pass. Scheduled by the cron layer at the
// configured sweep interval; a failed pass is retried on the next tick and
// never blocks register/heartbeat/deregister traffic.
func (s *Service) SweepOnce(ctx context.Context) error {
	return s.sweeper.SweepOnce(ctx)
}

// recordTermination persists last-seen once per session termination, off the
// hot path. Best effort: a failed write only loses the "last seen" hint.
func (s *Service) recordTermination(userID string) {
	if s.lastSeen == nil {
		return
	}
	at := s.clock()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lastSeenWriteTimeout)
		defer cancel()
		if err := s.lastSeen.RecordLastSeen(ctx, userID, at); err != nil {
			s.logger.Warn("last-seen write failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

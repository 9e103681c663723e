package presence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sweeper is the liveness detector: it removes sessions whose clients vanished
// without deregistering (crash, lost network, closed laptop). Scheduled to run
// every sweepInterval by the caller; one full pass per SweepOnce call.
type Sweeper struct {
	reg       *Registry
	threshold time.Duration
	clock     Clock
	logger    *zap.Logger
	onExpired func(s Session)
}

// NewSweeper builds a sweeper over reg. threshold is the maximum allowed gap
// since the last heartbeat before a session is presumed dead. onExpired fires
// once per removed session (after the registry change hook); pass nil to
// disable.
func NewSweeper(reg *Registry, threshold time.Duration, clock Clock, logger *zap.Logger, onExpired func(s Session)) *Sweeper {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if onExpired == nil {
		onExpired = func(Session) {}
	}
	return &Sweeper{reg: reg, threshold: threshold, clock: clock, logger: logger, onExpired: onExpired}
}

// SweepOnce scans a snapshot of all sessions and removes the stale ones one at
// a time, never holding a per-session lock across the whole scan. A session
// whose heartbeat moved past the cutoff between snapshot and delete is skipped.
// A retriable storage error aborts the pass; the next scheduled sweep retries.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	sessions, err := s.reg.Snapshot()
	if err != nil {
		return fmt.Errorf("liveness sweep: %w", err)
	}

	cutoff := s.clock().Add(-s.threshold)
	expired := 0
	for _, sess := range sessions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !sess.LastHeartbeat.Before(cutoff) {
			continue
		}
		removed, ok, err := s.reg.expireStale(sess.ID, cutoff)
		if err != nil {
			return fmt.Errorf("liveness sweep: expire %s: %w", sess.ID, err)
		}
		if !ok {
			continue
		}
		expired++
		s.logger.Debug("session expired",
			zap.String("session_id", removed.ID),
			zap.String("user_id", removed.UserID),
			zap.Time("last_heartbeat", removed.LastHeartbeat),
		)
		s.onExpired(removed)
	}

	if expired > 0 {
		s.logger.Info("liveness sweep removed stale sessions", zap.Int("expired", expired))
	}
	return nil
}

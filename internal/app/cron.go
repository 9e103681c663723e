package app

import (
	"context"
	"fmt"
	"time"

	"github.com/studytrack/core/internal/config"
	"github.com/studytrack/core/internal/modules/presence"
	pkgcron "github.com/studytrack/core/internal/pkg/cron"
	pkgredis "github.com/studytrack/core/internal/pkg/redis"
	"go.uber.org/zap"
)

const redisKeyPresenceRollup = "st:stats:presence"

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, svc *presence.Service, rc *pkgredis.Client, cfg *config.AppConfig, logger *zap.Logger) {
	cronLogger := logger.Named("cron")

	sched.Register(pkgcron.Job{
		Name:        "presence:sweep",
		Description: "expire sessions whose last heartbeat is older than the stale threshold",
		Interval:    cfg.Presence.SweepInterval,
		Fn: func(ctx context.Context) error {
			if err := svc.SweepOnce(ctx); err != nil {
				cronLogger.Warn("liveness sweep failed", zap.Error(err))
				return err
			}
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "presence:stats-rollup",
		Description: "record the daily peak of simultaneously online users",
		Interval:    5 * time.Minute,
		Fn: func(ctx context.Context) error {
			sessions, err := svc.Sessions()
			if err != nil {
				return err
			}
			users := map[string]struct{}{}
			for _, s := range sessions {
				users[s.UserID] = struct{}{}
			}
			online := len(users)

			day := time.Now().Format("2006-01-02")
			field := fmt.Sprintf("max:%s", day)
			prev, err := rc.Raw().HGet(ctx, redisKeyPresenceRollup, field).Int()
			if err == nil && prev >= online {
				return nil
			}
			return rc.Raw().HSet(ctx, redisKeyPresenceRollup, field, online).Err()
		},
	})
}

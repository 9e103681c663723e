package presence

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	pkgredis "github.com/studytrack/core/internal/pkg/redis"
	"go.uber.org/zap"
)

const redisChanEvents = "st:presence:events"

// fanoutEnvelope tags events with the publishing instance so each instance can
// skip its own messages; local subscribers were already served directly.
type fanoutEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisFanout bridges presence events between server instances over a Redis
// pub/sub channel, the same way the gateway fans out broadcasts. Instances do
// not share a session store, so each one re-delivers remote events to its own
// subscribers without recomputing.
type RedisFanout struct {
	rc       *pkgredis.Client
	logger   *zap.Logger
	instance string
}

// NewRedisFanout builds the bridge with a unique per-process instance id.
func NewRedisFanout(rc *pkgredis.Client, logger *zap.Logger) *RedisFanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFanout{rc: rc, logger: logger, instance: uuid.NewString()}
}

// Publish implements Fanout.
func (f *RedisFanout) Publish(ev Event) error {
	data, err := json.Marshal(fanoutEnvelope{Origin: f.instance, Event: ev})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), lastSeenWriteTimeout)
	defer cancel()
	return f.rc.Publish(ctx, redisChanEvents, string(data))
}

// Run subscribes to the event channel and feeds remote events into svc until
// ctx ends. Own and malformed payloads are dropped.
func (f *RedisFanout) Run(ctx context.Context, svc *Service) {
	pubsub := f.rc.Subscribe(ctx, redisChanEvents)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env fanoutEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				f.logger.Warn("invalid presence fan-out payload", zap.Error(err))
				continue
			}
			if env.Origin == f.instance {
				continue
			}
			svc.HandleRemote(env.Event)
		}
	}
}

package gateway

import (
	"sync"

	"github.com/studytrack/core/internal/modules/presence"
	pkgredis "github.com/studytrack/core/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	namespaceWeb       = "/web"
	redisChanBroadcast = "st:gateway:broadcast"

	redisKeyMaxOnlineCount   = "st:stats:max_online"
	redisKeyOnlineCountTotal = "st:stats:online_total"

	// inbound message types
	messagePresenceRegister    = "presence_register"
	messagePresenceHeartbeat   = "presence_heartbeat"
	messagePresenceDeregister  = "presence_deregister"
	messagePresenceSubscribe   = "presence_subscribe"
	messagePresenceUnsubscribe = "presence_unsubscribe"

	// outbound event types
	eventGatewayConnect   = "GATEWAY_CONNECT"
	eventAuthFailed       = "AUTH_FAILED"
	eventPresenceAck      = "PRESENCE_ACK"
	eventPresenceRejected = "PRESENCE_REJECTED"
	eventPresenceUpdate   = "PRESENCE_UPDATE"
)

// Message is the envelope used by hub broadcasts and Redis fan-out. Origin
// carries the publishing instance id so a hub skips its own fan-out copies.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	Origin  string      `json:"origin,omitempty"`
}

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type clientMeta struct {
	sid    string
	userID string
}

// client is the per-socket state the hub tracks: the presence session the
// socket registered (for graceful teardown) and its open feed.
type client struct {
	userID    string
	sessionID string
	feed      *presence.Subscription
}

// Hub manages the socket.io namespace, per-socket presence state and
// cluster fan-out of application broadcasts.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	broadcast  chan Message
	register   chan clientMeta
	unregister chan clientMeta

	rc             *pkgredis.Client
	logger         *zap.Logger
	sio            *socketio.Server
	presence       *presence.Service
	instance       string
	tokenValidator func(token string) (userID string, err error)
}

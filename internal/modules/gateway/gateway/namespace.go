package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/studytrack/core/internal/modules/presence"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

type inboundWebMessage struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

const socketOpTimeout = 5 * time.Second

func (h *Hub) registerNamespaces() {
	webNS := h.sio.Of(namespaceWeb, nil)
	_ = webNS.On("connection", func(args ...any) {
		sock, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		token := normalizeToken(extractToken(sock))
		userID, err := h.validate(token)
		if err != nil {
			_ = sock.Emit("message", h.gatewayMessageFormat(eventAuthFailed, "auth failed"))
			sock.Disconnect(true)
			return
		}

		sid := string(sock.Id())
		h.register <- clientMeta{sid: sid, userID: userID}
		_ = sock.Emit("message", h.gatewayMessageFormat(eventGatewayConnect, "WebSocket connected"))

		_ = sock.On("message", func(eventArgs ...any) {
			msg, ok := parseInboundWebMessage(eventArgs...)
			if !ok {
				return
			}
			h.handleWebMessage(sock, sid, userID, msg)
		})

		_ = sock.On("disconnect", func(_ ...any) {
			h.unregister <- clientMeta{sid: sid, userID: userID}
		})
	})
}

func (h *Hub) validate(token string) (string, error) {
	if token == "" || h.tokenValidator == nil {
		return "", errors.New("missing token")
	}
	return h.tokenValidator(token)
}

func (h *Hub) handleWebMessage(sock *socketio.Socket, sid, userID string, msg inboundWebMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), socketOpTimeout)
	defer cancel()

	switch msg.Type {
	case messagePresenceRegister:
		sessionID := strFromAny(msg.Payload["sessionId"])
		if sessionID == "" {
			return
		}
		if err := h.presence.Register(ctx, userID, sessionID); err != nil {
			h.rejectPresence(sock, sessionID, err)
			return
		}
		h.setSessionID(sid, sessionID)
		_ = sock.Emit("message", h.gatewayMessageFormat(eventPresenceAck, map[string]interface{}{
			"sessionId": sessionID,
		}))

	case messagePresenceHeartbeat:
		sessionID := strFromAny(msg.Payload["sessionId"])
		if sessionID == "" {
			return
		}
		status := presence.Status(strFromAny(msg.Payload["status"]))
		if status != "" && !status.ValidLocal() {
			return
		}
		if err := h.presence.Heartbeat(ctx, sessionID, status); err != nil {
			h.rejectPresence(sock, sessionID, err)
		}

	case messagePresenceDeregister:
		sessionID := strFromAny(msg.Payload["sessionId"])
		if sessionID == "" {
			return
		}
		if err := h.presence.Deregister(ctx, sessionID); err != nil && h.logger != nil {
			h.logger.Debug("gateway deregister failed", zap.Error(err))
		}
		h.clearSessionID(sid, sessionID)

	case messagePresenceSubscribe:
		ids := strSliceFromAny(msg.Payload["userIds"])
		if len(ids) == 0 {
			return
		}
		h.openFeed(sock, sid, userID, ids)

	case messagePresenceUnsubscribe:
		h.closeFeed(sid)
	}
}

// rejectPresence tells the client why an ingestion call was refused so its
// agent can recover (mint a fresh id, re-register). These are expected races,
// not errors worth surfacing to the user.
func (h *Hub) rejectPresence(sock *socketio.Socket, sessionID string, err error) {
	code := "error"
	switch {
	case errors.Is(err, presence.ErrDuplicateSession):
		code = "duplicate_session"
	case errors.Is(err, presence.ErrUnknownSession):
		code = "unknown_session"
	case errors.Is(err, presence.ErrStorageUnavailable):
		code = "unavailable"
	}
	_ = sock.Emit("message", h.gatewayMessageFormat(eventPresenceRejected, map[string]interface{}{
		"sessionId": sessionID,
		"code":      code,
	}))
}

// openFeed replaces the socket's subscription with a fresh one (snapshot
// first, then deltas) and pumps events to the client until the feed closes.
func (h *Hub) openFeed(sock *socketio.Socket, sid, viewerID string, userIDs []string) {
	sub := h.presence.Subscribe(viewerID, userIDs)

	h.mu.Lock()
	state, ok := h.clients[sid]
	if !ok {
		h.mu.Unlock()
		sub.Close()
		return
	}
	prev := state.feed
	state.feed = sub
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	go func() {
		for ev := range sub.Events() {
			_ = sock.Emit("message", h.gatewayMessageFormat(eventPresenceUpdate, ev))
		}
	}()
}

func (h *Hub) closeFeed(sid string) {
	h.mu.Lock()
	state, ok := h.clients[sid]
	var feed *presence.Subscription
	if ok {
		feed = state.feed
		state.feed = nil
	}
	h.mu.Unlock()

	if feed != nil {
		feed.Close()
	}
}

func (h *Hub) setSessionID(sid, sessionID string) {
	h.mu.Lock()
	if state, ok := h.clients[sid]; ok {
		state.sessionID = sessionID
	}
	h.mu.Unlock()
}

func (h *Hub) clearSessionID(sid, sessionID string) {
	h.mu.Lock()
	if state, ok := h.clients[sid]; ok && state.sessionID == sessionID {
		state.sessionID = ""
	}
	h.mu.Unlock()
}

func extractToken(sock *socketio.Socket) string {
	handshake := sock.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	return firstValueFromMultiMap(handshake.Headers, "authorization")
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	if len(values) == 0 {
		return ""
	}
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		v := strings.TrimSpace(list[0])
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

func parseInboundWebMessage(args ...any) (inboundWebMessage, bool) {
	if len(args) == 0 || args[0] == nil {
		return inboundWebMessage{}, false
	}

	var msg inboundWebMessage
	switch raw := args[0].(type) {
	case map[string]interface{}:
		msg.Type = strFromAny(raw["type"])
		msg.Payload = mapFromAny(raw["payload"])
	case string:
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return inboundWebMessage{}, false
		}
	case []byte:
		if err := json.Unmarshal(raw, &msg); err != nil {
			return inboundWebMessage{}, false
		}
	default:
		data, err := json.Marshal(raw)
		if err != nil {
			return inboundWebMessage{}, false
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return inboundWebMessage{}, false
		}
	}

	msg.Type = strings.TrimSpace(msg.Type)
	if msg.Type == "" {
		return inboundWebMessage{}, false
	}
	if msg.Payload == nil {
		msg.Payload = map[string]interface{}{}
	}
	return msg, true
}

func mapFromAny(v interface{}) map[string]interface{} {
	switch typed := v.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		return typed
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return map[string]interface{}{}
		}
		out := map[string]interface{}{}
		if err := json.Unmarshal(data, &out); err != nil {
			return map[string]interface{}{}
		}
		return out
	}
}

func strFromAny(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return strings.TrimSpace(typed)
	default:
		return ""
	}
}

func strSliceFromAny(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := strFromAny(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

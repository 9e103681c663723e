package presence

import (
	"errors"
	"time"
)

// Status is the presence state of a session or of a user's aggregate.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
	// StatusUnknown is surfaced on query paths while the backing store is
	// unreachable. It is never stored on a session and never published.
	StatusUnknown Status = "unknown"
)

// ValidLocal reports whether s is a status a live session may carry.
// A session is never "offline" while its record exists; absence is offline.
func (s Status) ValidLocal() bool {
	return s == StatusOnline || s == StatusAway
}

// Session is one live registration of one user from one tab or device.
type Session struct {
	ID            string    `json:"sessionId"`
	UserID        string    `json:"userId"`
	LocalStatus   Status    `json:"localStatus"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	RegisteredAt  time.Time `json:"registeredAt"`
}

var (
	ErrDuplicateSession   = errors.New("presence: session id already registered")
	ErrUnknownSession     = errors.New("presence: unknown session")
	ErrStorageUnavailable = errors.New("presence: session store unavailable")
)

// Clock supplies the current time. Injected everywhere so tests can drive
// staleness deterministically.
type Clock func() time.Time

package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int
	Env            string // "development" | "production"
	MongoURL       string
	MongoDatabase  string
	RedisURL       string
	AllowedOrigins []string
	JWTSecret      string
	Timezone       string
	Presence       PresenceConfig
}

// PresenceConfig carries the presence subsystem timing knobs. The invariant
// StaleThreshold > 2 × HeartbeatInterval is enforced at load time so normal
// jitter never reads as a disconnect.
type PresenceConfig struct {
	// HeartbeatInterval is advertised to clients as their heartbeat cadence.
	HeartbeatInterval time.Duration
	// StaleThreshold is the maximum allowed gap since the last heartbeat
	// before a session is presumed dead.
	StaleThreshold time.Duration
	// SweepInterval is how often the liveness sweep runs.
	SweepInterval time.Duration
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env == "development" }

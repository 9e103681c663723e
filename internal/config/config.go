package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort          = 2330
	defaultEnv           = "development"
	defaultMongoURL      = "mongodb://localhost:27017"
	defaultMongoDatabase = "studytrack"
	defaultRedisURL      = "redis://localhost:6379/0"

	defaultHeartbeatInterval = 20 * time.Second
	defaultStaleThreshold    = 45 * time.Second
	defaultSweepInterval     = 15 * time.Second
)

type rawAppConfig struct {
	Port           int               `yaml:"port"`
	Env            string            `yaml:"env"`
	NodeEnv        string            `yaml:"node_env"`
	MongoURL       string            `yaml:"mongo_url"`
	MongoDatabase  string            `yaml:"mongo_database"`
	RedisURL       string            `yaml:"redis_url"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	JWTSecret      string            `yaml:"jwt_secret"`
	Timezone       string            `yaml:"timezone"`
	Presence       rawPresenceConfig `yaml:"presence"`
}

type rawPresenceConfig struct {
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	StaleThreshold    string `yaml:"stale_threshold"`
	SweepInterval     string `yaml:"sweep_interval"`
}

// Load reads and validates the YAML config file at path.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content into a validated AppConfig.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	raw := rawAppConfig{}
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if err := applyRaw(&cfg, raw); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port:          defaultPort,
		Env:           defaultEnv,
		MongoURL:      defaultMongoURL,
		MongoDatabase: defaultMongoDatabase,
		RedisURL:      defaultRedisURL,
		Presence: PresenceConfig{
			HeartbeatInterval: defaultHeartbeatInterval,
			StaleThreshold:    defaultStaleThreshold,
			SweepInterval:     defaultSweepInterval,
		},
	}
}

func applyRaw(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if env := firstNonEmpty(raw.Env, raw.NodeEnv); env != "" {
		cfg.Env = env
	}
	if raw.MongoURL != "" {
		cfg.MongoURL = raw.MongoURL
	}
	if raw.MongoDatabase != "" {
		cfg.MongoDatabase = raw.MongoDatabase
	}
	if raw.RedisURL != "" {
		cfg.RedisURL = raw.RedisURL
	}
	if len(raw.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = raw.AllowedOrigins
	}
	cfg.JWTSecret = raw.JWTSecret
	cfg.Timezone = raw.Timezone

	var err error
	if cfg.Presence.HeartbeatInterval, err = parseDurationOr(raw.Presence.HeartbeatInterval, defaultHeartbeatInterval); err != nil {
		return fmt.Errorf("presence.heartbeat_interval: %w", err)
	}
	if cfg.Presence.StaleThreshold, err = parseDurationOr(raw.Presence.StaleThreshold, defaultStaleThreshold); err != nil {
		return fmt.Errorf("presence.stale_threshold: %w", err)
	}
	if cfg.Presence.SweepInterval, err = parseDurationOr(raw.Presence.SweepInterval, defaultSweepInterval); err != nil {
		return fmt.Errorf("presence.sweep_interval: %w", err)
	}
	return nil
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	if cfg.Env != "development" && cfg.Env != "production" {
		return fmt.Errorf("invalid env %q, expected development or production", cfg.Env)
	}

	p := cfg.Presence
	if p.HeartbeatInterval <= 0 || p.StaleThreshold <= 0 || p.SweepInterval <= 0 {
		return fmt.Errorf("presence intervals must be positive")
	}
	if p.StaleThreshold <= 2*p.HeartbeatInterval {
		return fmt.Errorf("presence.stale_threshold (%s) must exceed 2x heartbeat_interval (%s) to tolerate a dropped heartbeat",
			p.StaleThreshold, p.HeartbeatInterval)
	}
	return nil
}

func parseDurationOr(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("expect a duration like \"20s\": %w", err)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

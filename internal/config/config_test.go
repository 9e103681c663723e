package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse empty: %v", err)
	}
	if cfg.Port != 2330 {
		t.Errorf("Port = %d, want 2330", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("default env is not development")
	}
	if cfg.Presence.HeartbeatInterval != 20*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 20s", cfg.Presence.HeartbeatInterval)
	}
	if cfg.Presence.StaleThreshold != 45*time.Second {
		t.Errorf("StaleThreshold = %v, want 45s", cfg.Presence.StaleThreshold)
	}
	if cfg.Presence.SweepInterval != 15*time.Second {
		t.Errorf("SweepInterval = %v, want 15s", cfg.Presence.SweepInterval)
	}
}

func TestParseFullConfig(t *testing.T) {
	content := `
port: 8080
env: production
mongo_url: mongodb://db:27017
mongo_database: tracker
redis_url: redis://cache:6379/1
allowed_origins:
  - "*.example.com"
jwt_secret: sekrit
timezone: Europe/Istanbul
presence:
  heartbeat_interval: 10s
  stale_threshold: 30s
  sweep_interval: 5s
`
	cfg, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 8080 || cfg.Env != "production" {
		t.Errorf("port/env = %d/%s", cfg.Port, cfg.Env)
	}
	if cfg.MongoDatabase != "tracker" {
		t.Errorf("MongoDatabase = %s", cfg.MongoDatabase)
	}
	if cfg.Presence.HeartbeatInterval != 10*time.Second || cfg.Presence.StaleThreshold != 30*time.Second {
		t.Errorf("presence timing = %+v", cfg.Presence)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte("prot: 8080\n")); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad port", "port: 99999\n", "invalid port"},
		{"bad env", "env: staging\n", "invalid env"},
		{"negative interval", "presence:\n  sweep_interval: -5s\n", "positive"},
		{"bad duration", "presence:\n  heartbeat_interval: soon\n", "duration"},
		{
			// 45s threshold does not exceed 2x a 25s heartbeat.
			"threshold too tight",
			"presence:\n  heartbeat_interval: 25s\n",
			"must exceed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseNodeEnvAlias(t *testing.T) {
	cfg, err := Parse([]byte("node_env: production\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.IsDev() {
		t.Error("node_env alias ignored")
	}
}

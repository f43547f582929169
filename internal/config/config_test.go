package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("expected default server url http://localhost:8080, got %s", cfg.ServerURL)
	}
	if cfg.TypingTimeout != 1500*time.Millisecond {
		t.Errorf("expected default typing timeout 1.5s, got %s", cfg.TypingTimeout)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DBPath != "roomchat.db" {
		t.Errorf("expected default db path roomchat.db, got %s", cfg.DBPath)
	}
	if cfg.MaxHistory != 50 {
		t.Errorf("expected default max history 50, got %d", cfg.MaxHistory)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_URL", "http://chat.internal:9090")
	t.Setenv("TYPING_TIMEOUT_MS", "200")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("MAX_HISTORY", "25")

	cfg := Load()
	if cfg.ServerURL != "http://chat.internal:9090" {
		t.Errorf("expected server url http://chat.internal:9090, got %s", cfg.ServerURL)
	}
	if cfg.TypingTimeout != 200*time.Millisecond {
		t.Errorf("expected typing timeout 200ms, got %s", cfg.TypingTimeout)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("expected db path /tmp/test.db, got %s", cfg.DBPath)
	}
	if cfg.MaxHistory != 25 {
		t.Errorf("expected max history 25, got %d", cfg.MaxHistory)
	}
}

func TestLoadInvalidInt(t *testing.T) {
	os.Setenv("MAX_HISTORY", "notanumber")
	defer os.Unsetenv("MAX_HISTORY")

	cfg := Load()
	if cfg.MaxHistory != 50 {
		t.Errorf("expected fallback max history 50, got %d", cfg.MaxHistory)
	}
}

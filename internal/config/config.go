package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings for both the chat client and the dev server,
// loaded from environment variables.
type Config struct {
	// Client side.
	ServerURL     string
	TypingTimeout time.Duration

	// Server side.
	Port       string
	DBPath     string
	MaxHistory int
}

// Load reads an optional .env file, then configuration from environment
// variables with sensible defaults.
func Load() Config {
	// Missing .env is fine; real environment always wins.
	_ = godotenv.Load()

	return Config{
		ServerURL:     envOrDefault("SERVER_URL", "http://localhost:8080"),
		TypingTimeout: time.Duration(envOrDefaultInt("TYPING_TIMEOUT_MS", 1500)) * time.Millisecond,
		Port:          envOrDefault("PORT", "8080"),
		DBPath:        envOrDefault("DB_PATH", "roomchat.db"),
		MaxHistory:    envOrDefaultInt("MAX_HISTORY", 50),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

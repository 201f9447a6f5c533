// Package config handles loading and validating runtime configuration for the chat relay.
// Values are read from environment variables instead of being hardcoded, so the same
// binary runs in development, staging and production with only the environment changing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	// godotenv reads a .env file and loads its key=value pairs into the process environment.
	// Handy in development; in production the deployment platform sets real env vars.
	"github.com/joho/godotenv"
)

// Delivery modes for the realtime layer. The two are mutually exclusive: a process either
// pushes events over websockets or buffers them for HTTP polling, never both.
const (
	ModeWebsocket = "websocket"
	ModePoll      = "poll"
)

// Config holds all runtime configuration values for the application.
type Config struct {
	Port           string // TCP port the HTTP server listens on (e.g. "8080")
	DatabaseURL    string // PostgreSQL connection string
	Env            string // "development", "staging" or "production"
	AllowedOrigins string // Comma separated CORS origins, "*" allows all

	JWTSecret string // HMAC secret used to verify bearer tokens issued by the account system
	JWTIssuer string // Expected "iss" claim; empty disables the check

	LogLevel  string // trace, debug, info, warn, error
	LogFormat string // json or console

	RealtimeMode    string        // ModeWebsocket or ModePoll
	PollMinInterval time.Duration // Minimum gap between two accepted polls of one user
	EventBufferSize int           // Pending events kept per user in poll mode
	EventRetention  time.Duration // Pending events older than this are pruned on poll
	PresenceWindow  time.Duration // Poll mode: a user polling within this window counts as online
	SendQueueSize   int           // Outbound frames buffered per websocket connection
}

// Load reads configuration from environment variables and returns a populated Config.
// A missing .env file is fine: real environment variables are used instead.
func Load() *Config {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	// Console output is easier to read while developing; JSON is what log shippers expect.
	defaultFormat := "json"
	if env == "development" {
		defaultFormat = "console"
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"), // Required: the server will not start without it
		Env:            env,
		AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTIssuer: os.Getenv("JWT_ISSUER"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", defaultFormat),

		RealtimeMode:    getEnv("REALTIME_MODE", ModeWebsocket),
		PollMinInterval: getDuration("POLL_MIN_INTERVAL", time.Second),
		EventBufferSize: getInt("EVENT_BUFFER_SIZE", 50),
		EventRetention:  getDuration("EVENT_RETENTION", 300*time.Second),
		PresenceWindow:  getDuration("PRESENCE_WINDOW", 30*time.Second),
		SendQueueSize:   getInt("WS_SEND_QUEUE", 64),
	}
}

// Validate checks the values that would otherwise fail later in confusing ways.
func (c *Config) Validate() error {
	switch c.RealtimeMode {
	case ModeWebsocket, ModePoll:
	default:
		return fmt.Errorf("REALTIME_MODE must be %q or %q, got %q", ModeWebsocket, ModePoll, c.RealtimeMode)
	}
	if c.EventBufferSize <= 0 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be positive, got %d", c.EventBufferSize)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("WS_SEND_QUEUE must be positive, got %d", c.SendQueueSize)
	}
	if c.PollMinInterval <= 0 || c.EventRetention <= 0 || c.PresenceWindow <= 0 {
		return fmt.Errorf("POLL_MIN_INTERVAL, EVENT_RETENTION and PRESENCE_WINDOW must be positive")
	}
	if c.JWTSecret == "" && c.Env != "development" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%s", c.Env)
	}
	return nil
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnv returns the environment variable or the fallback when it is unset or empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getInt parses an integer variable. Garbage falls back to the default instead of
// crashing at startup; Validate catches the values that actually matter.
func getInt(key string, fallback int) int {
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

// getDuration accepts Go duration strings ("1.5s", "5m") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

// Package config loads engine configuration from the environment.
// A .env file is honored in development via godotenv.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the engine
type Config struct {
	Port        string
	Environment string

	DatabaseURL string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	JWTSecret string

	LogLevel string
	LogFile  string

	// ViewDebounce is how long a post must stay on screen before a view
	// is recorded
	ViewDebounce time.Duration

	// ResolverTTL bounds how long resolved display names are cached
	ResolverTTL time.Duration

	// FeedPageSize is the number of posts per feed page
	FeedPageSize int

	// NotificationCap bounds the per-recipient notification log
	NotificationCap int

	// TracingEnabled toggles the OpenTelemetry exporter
	TracingEnabled bool
	OTLPEndpoint   string
}

// Load reads configuration from the environment, with defaults suitable
// for local development.
func Load() *Config {
	// Missing .env is fine in production
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8787"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisHost:       getEnv("REDIS_HOST", "localhost"),
		RedisPort:       getEnv("REDIS_PORT", "6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret-do-not-use-in-prod"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", "engine.log"),
		ViewDebounce:    getDuration("VIEW_DEBOUNCE", 5*time.Second),
		ResolverTTL:     getDuration("RESOLVER_TTL", time.Minute),
		FeedPageSize:    getInt("FEED_PAGE_SIZE", 5),
		NotificationCap: getInt("NOTIFICATION_CAP", 100),
		TracingEnabled:  getBool("OTEL_ENABLED", false),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
	}
}

// IsProduction reports whether the engine runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds process configuration for the scan service and CLI.
type Config struct {
	LogLevel       string
	DatabaseDriver string
	DatabaseURL    string
	RedisAddr      string
	PolicyFile     string
	RateLimitRPS   float64
	RateLimitBurst int
	IdempotencyTTL time.Duration
	OTLPEndpoint   string
}

// Load loads configuration from environment variables. An empty
// DATABASE_URL puts the station in lite mode (a local SQLite file); an
// empty REDIS_ADDR disables the Redis-backed limiter and idempotency
// store; a zero RATE_LIMIT_RPS disables backpressure entirely.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = "postgres"
	}

	return &Config{
		LogLevel:       logLevel,
		DatabaseDriver: driver,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		PolicyFile:     os.Getenv("POLICY_FILE"),
		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 10),
		IdempotencyTTL: envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	// Catch-up pagination.
	ChangesPageLimit int

	// Activity gating.
	ActivityTTL            time.Duration
	ActivityWriteThreshold time.Duration

	// Presence pipeline.
	PresenceStream        string
	PresenceGroup         string
	PresenceConsumer      string
	PresenceFlushInterval time.Duration
	PresenceReclaimIdle   time.Duration
	PresenceReadBlock     time.Duration

	// When false the process flushes presence locally instead of going
	// through the durable queue (single-process deployments).
	PresenceUseStream bool
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		PresenceStream:   getEnv("PRESENCE_STREAM", "presence:events"),
		PresenceGroup:    getEnv("PRESENCE_GROUP", "presence-flush"),
		PresenceConsumer: getEnv("PRESENCE_CONSUMER", defaultConsumerName()),
	}

	var err error
	if cfg.ChangesPageLimit, err = getEnvInt("CHANGES_PAGE_LIMIT", "200"); err != nil {
		return nil, err
	}
	if cfg.ActivityTTL, err = getEnvDuration("ACTIVITY_TTL", "5m"); err != nil {
		return nil, err
	}
	if cfg.ActivityWriteThreshold, err = getEnvDuration("ACTIVITY_WRITE_THRESHOLD", "30s"); err != nil {
		return nil, err
	}
	if cfg.PresenceFlushInterval, err = getEnvDuration("PRESENCE_FLUSH_INTERVAL", "10s"); err != nil {
		return nil, err
	}
	if cfg.PresenceReclaimIdle, err = getEnvDuration("PRESENCE_RECLAIM_IDLE", "60s"); err != nil {
		return nil, err
	}
	if cfg.PresenceReadBlock, err = getEnvDuration("PRESENCE_READ_BLOCK", "2s"); err != nil {
		return nil, err
	}
	cfg.PresenceUseStream = getEnv("PRESENCE_USE_STREAM", "true") == "true"

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" && cfg.PresenceUseStream {
		return nil, errors.New("REDIS_URL is required when PRESENCE_USE_STREAM is enabled")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) (int, error) {
	v, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, errors.New("invalid " + key + " format")
	}
	return v, nil
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, errors.New("invalid " + key + " format")
	}
	return d, nil
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil {
		return "consumer-" + strconv.Itoa(os.Getpid())
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}

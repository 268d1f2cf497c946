// Package config reads the service configuration from LOCATIONCORE_*
// environment variables so main stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"locationcore/internal/blob"
	"locationcore/internal/core"
	"locationcore/pkg/domain"
)

// Config is the full service configuration.
type Config struct {
	Addr               string
	LogLevel           string
	LogFormat          string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	Storage            core.StorageConfig
	Blob               blob.Config
	PrisonConfigPath   string
	DeactivationPolicy domain.DeactivationPolicy
	RedisURL           string
	LockTTL            time.Duration
	KafkaBrokers       []string
	EventTopic         string
	AuditTopic         string
}

// FromEnv reads:
//
//	LOCATIONCORE_ADDR: listen address (default :8080)
//	LOCATIONCORE_LOG_LEVEL: debug|info|warn|error (default info)
//	LOCATIONCORE_LOG_FORMAT: json|text (default json)
//	LOCATIONCORE_REQUEST_TIMEOUT, LOCATIONCORE_SHUTDOWN_TIMEOUT: durations (30s, 10s)
//	LOCATIONCORE_PRISON_CONFIG: prison YAML file (optional)
//	LOCATIONCORE_DEACTIVATION_POLICY: preserve|zero (default preserve)
//	LOCATIONCORE_REDIS_URL: enables the Redis approval lock
//	LOCATIONCORE_LOCK_TTL: Redis lock TTL (default 30s)
//	LOCATIONCORE_KAFKA_BROKERS: comma separated; enables Kafka events
//	LOCATIONCORE_KAFKA_EVENT_TOPIC, LOCATIONCORE_KAFKA_AUDIT_TOPIC
//
// Storage and blob variables are documented on core.StorageConfigFromEnv
// and blob.ConfigFromEnv.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:               envOr("LOCATIONCORE_ADDR", ":8080"),
		LogLevel:           envOr("LOCATIONCORE_LOG_LEVEL", "info"),
		LogFormat:          envOr("LOCATIONCORE_LOG_FORMAT", "json"),
		Storage:            core.StorageConfigFromEnv(),
		PrisonConfigPath:   os.Getenv("LOCATIONCORE_PRISON_CONFIG"),
		DeactivationPolicy: domain.ParseDeactivationPolicy(os.Getenv("LOCATIONCORE_DEACTIVATION_POLICY")),
		RedisURL:           os.Getenv("LOCATIONCORE_REDIS_URL"),
		KafkaBrokers:       splitList(os.Getenv("LOCATIONCORE_KAFKA_BROKERS")),
		EventTopic:         os.Getenv("LOCATIONCORE_KAFKA_EVENT_TOPIC"),
		AuditTopic:         os.Getenv("LOCATIONCORE_KAFKA_AUDIT_TOPIC"),
	}
	var err error
	if cfg.RequestTimeout, err = durationEnv("LOCATIONCORE_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("LOCATIONCORE_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = durationEnv("LOCATIONCORE_LOCK_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Blob, err = blob.ConfigFromEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

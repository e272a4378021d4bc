// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers .env, an optional YAML file and SITESTATS_* env vars on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Storage backends accepted by StorageBackend.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory track command queue across all shards.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of queue shards, one worker each.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the event id deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// StorageBackend selects the durable key-value store: memory, badger or redis.
	StorageBackend string `koanf:"storage_backend"`

	// BadgerPath is the badger data directory.
	BadgerPath string `koanf:"badger_path"`

	// Redis connection settings.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// KeyPrefix namespaces every key written to the store.
	KeyPrefix string `koanf:"key_prefix"`

	// GeoIPPath points at a MaxMind City database. Empty resolves every visitor to "Unknown".
	GeoIPPath string `koanf:"geoip_path"`

	// Timezone is the IANA zone used to truncate timestamps into traffic buckets.
	Timezone string `koanf:"timezone"`

	// SessionIdleTimeoutS ends sessions after this many seconds without activity.
	SessionIdleTimeoutS int `koanf:"session_idle_timeout_s"`

	// SweepIntervalS sets how often idle sessions are looked for.
	SweepIntervalS int `koanf:"sweep_interval_s"`

	// KafkaBrokers is a comma-separated broker list. Empty disables stream ingest.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`
	KafkaGroup   string `koanf:"kafka_group"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		EventQueueSize:      100_000,
		WorkerCount:         runtime.NumCPU() * 2,
		DedupeSize:          500_000,
		StorageBackend:      BackendMemory,
		BadgerPath:          "data/badger",
		RedisAddr:           "localhost:6379",
		KeyPrefix:           "sitestats",
		Timezone:            "UTC",
		SessionIdleTimeoutS: 30 * 60,
		SweepIntervalS:      60,
		KafkaTopic:          "sitestats.track",
		KafkaGroup:          "sitestats",
	}
}

// Location resolves Timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SessionIdleTimeout returns SessionIdleTimeoutS as a duration.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutS) * time.Second
}

// SweepInterval returns SweepIntervalS as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalS) * time.Second
}

// Brokers splits KafkaBrokers, dropping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	switch c.StorageBackend {
	case BackendMemory:
	case BackendBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("%w: badger_path is required for the badger backend", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage_backend %q", ErrInvalidConfig, c.StorageBackend)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	if c.SessionIdleTimeoutS <= 0 || c.SweepIntervalS <= 0 {
		return fmt.Errorf("%w: session_idle_timeout_s and sweep_interval_s must be positive", ErrInvalidConfig)
	}
	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("%w: kafka_topic is required when kafka_brokers is set", ErrInvalidConfig)
	}
	return nil
}

package config

import (
	"fmt"
	"time"
)

const (
	defaultLockTTL               = 30 * time.Second
	defaultRegistryTimeout       = 30 * time.Second
	defaultReloadIntervalSeconds = 60
)

// Validate checks everything knowable before the process starts serving.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Registry.BaseURL == "" {
		return fmt.Errorf("registry.base_url is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}

	switch cfg.Engine.LockBackend {
	case "redis":
		if cfg.Database.Redis.Host == "" {
			return fmt.Errorf("database.redis.host is required when engine.lock_backend is redis")
		}
	case "memory":
	default:
		return fmt.Errorf("engine.lock_backend must be redis or memory, got %q", cfg.Engine.LockBackend)
	}

	if cfg.Engine.LockTTL < time.Second {
		return fmt.Errorf("engine.lock_ttl must be at least 1s, got %s", cfg.Engine.LockTTL)
	}

	if len(cfg.Broker.Kafka.Brokers) == 0 {
		return fmt.Errorf("broker.kafka.brokers is required")
	}
	if cfg.Broker.Kafka.DocumentTopic == "" {
		return fmt.Errorf("broker.kafka.document_topic is required")
	}

	if cfg.Rules.Reload.IntervalSeconds < 0 {
		return fmt.Errorf("rules.reload.interval_seconds must not be negative")
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}

	return nil
}

// Package config loads Bulwark configuration from YAML with environment
// variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Bulwark configuration.
type Config struct {
	DBPath      string          `yaml:"db_path"`
	Cache       CacheConfig     `yaml:"cache"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Breaker     BreakerConfig   `yaml:"breaker"`
	Queue       QueueConfig     `yaml:"queue"`
	Debounce    DebounceConfig  `yaml:"debounce"`
	Audit       AuditConfig     `yaml:"audit"`
	Preferences Preferences     `yaml:"preferences"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
	Persist bool          `yaml:"persist"`
}

// RateLimitConfig controls the sliding-window quota.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
	Persist     bool          `yaml:"persist"`
}

// BreakerConfig controls the circuit breaker.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// QueueConfig bounds the request queue.
type QueueConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxQueueSize  int           `yaml:"max_queue_size"`
	MaxRetries    int           `yaml:"max_retries"`
	Timeout       time.Duration `yaml:"timeout"`
	Backoff       time.Duration `yaml:"backoff"`
}

// DebounceConfig controls invocation coalescing. A zero window disables it.
type DebounceConfig struct {
	Window time.Duration `yaml:"window"`
}

// AuditConfig controls the invocation audit trail.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Preferences are the caller-supplied flags read by the orchestrator.
type Preferences struct {
	RemoteEnabled bool `yaml:"remote_enabled"`
	Premium       bool `yaml:"premium"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: "bulwark.db",
		Cache: CacheConfig{
			MaxSize: 100,
			TTL:     time.Hour,
			Persist: true,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 20,
			Window:      time.Minute,
			Persist:     true,
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			Cooldown:  5 * time.Minute,
		},
		Queue: QueueConfig{
			MaxConcurrent: 3,
			MaxQueueSize:  50,
			MaxRetries:    2,
			Timeout:       30 * time.Second,
			Backoff:       500 * time.Millisecond,
		},
		Debounce: DebounceConfig{
			Window: 300 * time.Millisecond,
		},
		Audit: AuditConfig{
			DBPath:        "bulwark_audit.db",
			RetentionDays: 7,
		},
		Preferences: Preferences{
			RemoteEnabled: true,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the components cannot honor.
func (c *Config) Validate() error {
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.max_size must be positive, got %d", c.Cache.MaxSize)
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be positive, got %d", c.RateLimit.MaxRequests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window)
	}
	if c.Queue.MaxConcurrent <= 0 {
		return fmt.Errorf("queue.max_concurrent must be positive, got %d", c.Queue.MaxConcurrent)
	}
	if c.Debounce.Window < 0 {
		return fmt.Errorf("debounce.window must not be negative, got %s", c.Debounce.Window)
	}
	if c.Audit.Enabled && c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit.retention_days must be positive, got %d", c.Audit.RetentionDays)
	}
	return nil
}

package cache

import (
	"time"

	"github.com/bulwark-ai/bulwark/pkg/models"
)

const (
	// DefaultMaxSize is the default maximum number of entries.
	DefaultMaxSize = 100
	// DefaultTTL is the default entry time-to-live.
	DefaultTTL = time.Hour
)

// Clock provides time operations for the cache.
// The default implementation uses time.Now().
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store is the durable backend the cache hydrates from and writes through to.
// Writes are best-effort: failures are logged, never propagated.
type Store interface {
	LoadCache() ([]models.CacheEntry, error)
	SaveCacheEntry(models.CacheEntry) error
	DeleteCacheEntry(key string) error
	ClearCache() error
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxSize sets the maximum number of entries before LRU eviction.
func WithMaxSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithTTL sets the time-to-live applied to new entries.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock sets a custom clock. Useful for testing TTL behavior.
func WithClock(clk Clock) Option {
	return func(c *Cache) {
		c.clock = clk
	}
}

// WithStore attaches a durable backend. Surviving entries are hydrated at
// construction; already-expired ones are discarded.
func WithStore(s Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// Package store persists resilience-layer state to a local SQLite database:
// cached remote responses and the rate-limiter's sliding window. Writers are
// best-effort; a second process opening the same file sees last-write-wins
// semantics, there is no cross-process coordination.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bulwark-ai/bulwark/pkg/models"
)

// DB is a handle to the durable store.
type DB struct {
	db *sql.DB
}

const migrate = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	data BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	hits INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS rate_events (
	ts DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_events_ts ON rate_events(ts);
`

// Open opens (creating if needed) the store at the given path. WAL mode and
// a busy timeout keep concurrent handles on the same file from erroring.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(migrate); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &DB{db: db}, nil
}

// LoadCache returns all persisted cache entries, oldest first.
func (d *DB) LoadCache() ([]models.CacheEntry, error) {
	rows, err := d.db.Query(
		`SELECT key, kind, data, created_at, expires_at, hits FROM cache_entries ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		var e models.CacheEntry
		if err := rows.Scan(&e.Key, &e.Kind, &e.Data, &e.CreatedAt, &e.ExpiresAt, &e.Hits); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveCacheEntry inserts or replaces a cache entry.
func (d *DB) SaveCacheEntry(e models.CacheEntry) error {
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (key, kind, data, created_at, expires_at, hits)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Key, e.Kind, []byte(e.Data), e.CreatedAt.UTC(), e.ExpiresAt.UTC(), e.Hits,
	)
	if err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntry removes a single cache entry.
func (d *DB) DeleteCacheEntry(key string) error {
	if _, err := d.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// ClearCache removes all cache entries.
func (d *DB) ClearCache() error {
	if _, err := d.db.Exec(`DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// PurgeExpiredCache removes entries whose expiry precedes now.
func (d *DB) PurgeExpiredCache(now time.Time) error {
	if _, err := d.db.Exec(`DELETE FROM cache_entries WHERE expires_at < ?`, now.UTC()); err != nil {
		return fmt.Errorf("purge expired cache: %w", err)
	}
	return nil
}

// CacheCount returns the number of persisted cache entries.
func (d *DB) CacheCount() (int64, error) {
	var count int64
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return count, nil
}

// LoadWindow returns the persisted rate-limiter timestamps, oldest first.
func (d *DB) LoadWindow() ([]time.Time, error) {
	rows, err := d.db.Query(`SELECT ts FROM rate_events ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}
	defer rows.Close()

	var window []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan rate event: %w", err)
		}
		window = append(window, ts)
	}
	return window, rows.Err()
}

// AppendWindow records one rate-limiter event.
func (d *DB) AppendWindow(ts time.Time) error {
	if _, err := d.db.Exec(`INSERT INTO rate_events (ts) VALUES (?)`, ts.UTC()); err != nil {
		return fmt.Errorf("append window: %w", err)
	}
	return nil
}

// TrimWindow removes events older than the cutoff.
func (d *DB) TrimWindow(before time.Time) error {
	if _, err := d.db.Exec(`DELETE FROM rate_events WHERE ts < ?`, before.UTC()); err != nil {
		return fmt.Errorf("trim window: %w", err)
	}
	return nil
}

// ClearWindow removes all rate-limiter events.
func (d *DB) ClearWindow() error {
	if _, err := d.db.Exec(`DELETE FROM rate_events`); err != nil {
		return fmt.Errorf("clear window: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is a single cached remote response.
type CacheEntry struct {
	Key       string          `json:"key"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Hits      int64           `json:"hits"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Package cache is a key-addressed response cache with TTL expiry, LRU
// eviction, and optional durable write-through persistence.
package cache

import (
	"container/list"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/bulwark-ai/bulwark/pkg/models"
)

// Cache stores remote responses keyed by operation kind + normalized input.
// Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	clock   Clock
	store   Store

	items map[string]*list.Element
	order *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64
}

// New creates a Cache. If a store is attached, surviving persisted entries
// are hydrated and already-expired ones discarded.
func New(opts ...Option) *Cache {
	c := &Cache{
		maxSize: DefaultMaxSize,
		ttl:     DefaultTTL,
		clock:   realClock{},
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store != nil {
		c.hydrate()
	}
	return c
}

func (c *Cache) hydrate() {
	entries, err := c.store.LoadCache()
	if err != nil {
		log.Printf("cache: hydrate failed: %v", err)
		return
	}
	now := c.clock.Now()
	for _, e := range entries {
		if !e.ExpiresAt.After(now) {
			if err := c.store.DeleteCacheEntry(e.Key); err != nil {
				log.Printf("cache: drop expired entry: %v", err)
			}
			continue
		}
		entry := e
		c.insertLocked(&entry)
	}
	// The store may hold more live entries than the configured capacity,
	// for example after max_size was lowered between runs.
	c.evictOverCapacityLocked()
}

// Get returns the cached data for key, or nil and false on miss or expiry.
// A hit bumps the entry's hit counter and LRU recency.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*models.CacheEntry)
	if !entry.ExpiresAt.After(c.clock.Now()) {
		c.removeLocked(elem, true)
		c.misses++
		return nil, false
	}

	entry.Hits++
	c.order.MoveToFront(elem)
	c.hits++
	c.persist(*entry)
	return entry.Data, true
}

// Has reports whether key holds a live entry, without touching recency or
// hit counters.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	return elem.Value.(*models.CacheEntry).ExpiresAt.After(c.clock.Now())
}

// Set stores data under key, evicting the least-recently-used entry first
// when at capacity.
func (c *Cache) Set(key, kind string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*models.CacheEntry)
		entry.Kind = kind
		entry.Data = data
		entry.CreatedAt = now
		entry.ExpiresAt = now.Add(c.ttl)
		c.order.MoveToFront(elem)
		c.persist(*entry)
		return
	}

	for c.order.Len() >= c.maxSize {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back, true)
		c.evictions++
	}

	entry := &models.CacheEntry{
		Key:       key,
		Kind:      kind,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.insertLocked(entry)
	c.persist(*entry)
}

// Clear removes all entries, in memory and in the durable store.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	if c.store != nil {
		if err := c.store.ClearCache(); err != nil {
			log.Printf("cache: clear store: %v", err)
		}
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a point-in-time copy of cache metrics.
func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{
		Entries:   c.order.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache) insertLocked(entry *models.CacheEntry) {
	c.items[entry.Key] = c.order.PushFront(entry)
}

// evictOverCapacityLocked drops LRU entries until the cache is back within
// maxSize.
func (c *Cache) evictOverCapacityLocked() {
	for c.order.Len() > c.maxSize {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeLocked(back, true)
		c.evictions++
	}
}

func (c *Cache) removeLocked(elem *list.Element, dropStored bool) {
	entry := elem.Value.(*models.CacheEntry)
	c.order.Remove(elem)
	delete(c.items, entry.Key)
	if dropStored && c.store != nil {
		if err := c.store.DeleteCacheEntry(entry.Key); err != nil {
			log.Printf("cache: delete stored entry: %v", err)
		}
	}
}

// persist writes through to the durable store. Best-effort: storage
// failures are logged, never surfaced to the caller.
func (c *Cache) persist(entry models.CacheEntry) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveCacheEntry(entry); err != nil {
		log.Printf("cache: persist entry: %v", err)
	}
}

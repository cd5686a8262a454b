package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bulwark-ai/bulwark/pkg/models"
	"github.com/bulwark-ai/bulwark/pkg/store"
)

func modelEntry(key string, created, expires time.Time) models.CacheEntry {
	return models.CacheEntry{
		Key:       key,
		Kind:      "chat",
		Data:      json.RawMessage(`{}`),
		CreatedAt: created,
		ExpiresAt: expires,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSetGet(t *testing.T) {
	c := New(WithMaxSize(10), WithTTL(time.Hour))

	c.Set("k1", "chat", json.RawMessage(`{"reply":"hi"}`))
	data, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(data) != `{"reply":"hi"}` {
		t.Errorf("unexpected data: %s", data)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestTTLExpiry(t *testing.T) {
	clk := newFakeClock()
	c := New(WithMaxSize(10), WithTTL(time.Minute), WithClock(clk))

	c.Set("k1", "chat", json.RawMessage(`1`))
	if _, ok := c.Get("k1"); !ok {
		t.Fatal("expected hit before expiry")
	}

	clk.Advance(time.Minute + time.Second)
	if _, ok := c.Get("k1"); ok {
		t.Error("expected miss after TTL elapsed")
	}
	if c.Has("k1") {
		t.Error("Has should report expired entry as absent")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry removed, len %d", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(WithMaxSize(3), WithTTL(time.Hour))

	c.Set("a", "chat", json.RawMessage(`1`))
	c.Set("b", "chat", json.RawMessage(`2`))
	c.Set("c", "chat", json.RawMessage(`3`))

	// Touch a so b becomes the least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}

	c.Set("d", "chat", json.RawMessage(`4`))

	if c.Has("b") {
		t.Error("expected b evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if !c.Has(key) {
			t.Errorf("expected %s retained", key)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("expected exactly 1 eviction, got %d", got)
	}
}

func TestUpdateExistingKeepsSize(t *testing.T) {
	c := New(WithMaxSize(2), WithTTL(time.Hour))

	c.Set("a", "chat", json.RawMessage(`1`))
	c.Set("a", "chat", json.RawMessage(`2`))

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
	data, _ := c.Get("a")
	if string(data) != `2` {
		t.Errorf("expected updated data, got %s", data)
	}
	if got := c.Stats().Evictions; got != 0 {
		t.Errorf("update should not evict, got %d evictions", got)
	}
}

func TestStats(t *testing.T) {
	c := New(WithMaxSize(10), WithTTL(time.Hour))

	c.Set("a", "chat", json.RawMessage(`1`))
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestClear(t *testing.T) {
	c := New(WithMaxSize(10), WithTTL(time.Hour))
	c.Set("a", "chat", json.RawMessage(`1`))
	c.Clear()
	if c.Len() != 0 || c.Has("a") {
		t.Error("expected empty cache after clear")
	}
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache_test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	c := New(WithMaxSize(10), WithTTL(time.Hour), WithStore(db))
	c.Set("k1", "chat", json.RawMessage(`{"reply":"hi"}`))
	c.Get("k1")
	c.Get("k1")

	entries, err := db.LoadCache()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", len(entries))
	}
	if entries[0].Hits != 2 {
		t.Errorf("expected persisted hit count 2, got %d", entries[0].Hits)
	}

	// A fresh cache over the same store hydrates the entry.
	c2 := New(WithMaxSize(10), WithTTL(time.Hour), WithStore(db))
	data, ok := c2.Get("k1")
	if !ok {
		t.Fatal("expected hydrated entry")
	}
	if string(data) != `{"reply":"hi"}` {
		t.Errorf("unexpected hydrated data: %s", data)
	}
}

func TestHydrateDiscardsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache_test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	clk := newFakeClock()
	now := clk.Now()
	seed := []struct {
		key       string
		expiresAt time.Time
	}{
		{"live", now.Add(time.Hour)},
		{"dead", now.Add(-time.Minute)},
	}
	for _, s := range seed {
		err := db.SaveCacheEntry(modelEntry(s.key, now, s.expiresAt))
		if err != nil {
			t.Fatal(err)
		}
	}

	c := New(WithMaxSize(10), WithTTL(time.Hour), WithClock(clk), WithStore(db))
	if c.Len() != 1 {
		t.Fatalf("expected 1 hydrated entry, got %d", c.Len())
	}
	if !c.Has("live") || c.Has("dead") {
		t.Error("expected only the live entry hydrated")
	}
}

func TestHydrateEnforcesMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache_test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// A store can hold more live entries than the configured capacity, for
	// example when max_size is lowered between runs.
	clk := newFakeClock()
	now := clk.Now()
	for i := 0; i < 5; i++ {
		entry := modelEntry(fmt.Sprintf("k%d", i), now.Add(time.Duration(i)*time.Second), now.Add(time.Hour))
		if err := db.SaveCacheEntry(entry); err != nil {
			t.Fatal(err)
		}
	}

	c := New(WithMaxSize(2), WithTTL(time.Hour), WithClock(clk), WithStore(db))
	if c.Len() != 2 {
		t.Fatalf("expected hydration bounded at 2, got %d", c.Len())
	}
	if !c.Has("k3") || !c.Has("k4") {
		t.Error("expected the two newest persisted entries retained")
	}
	if got := c.Stats().Evictions; got != 3 {
		t.Errorf("expected 3 hydration evictions, got %d", got)
	}

	count, err := db.CacheCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected evicted entries dropped from the store, got %d", count)
	}

	c.Set("k5", "chat", json.RawMessage(`5`))
	if c.Len() != 2 {
		t.Errorf("expected cache still bounded after Set, got %d", c.Len())
	}
}

func TestKeyNormalization(t *testing.T) {
	if Key("chat", "Hello   World") != Key("chat", "  hello world ") {
		t.Error("expected whitespace and case normalization for string inputs")
	}
	if Key("chat", "hello") == Key("analyze", "hello") {
		t.Error("expected kind to distinguish keys")
	}
	if Key("chat", map[string]int{"a": 1}) != Key("chat", map[string]int{"a": 1}) {
		t.Error("expected stable keys for structured inputs")
	}
	if Key("chat", json.RawMessage(`{"b":2,"a":1}`)) != Key("chat", json.RawMessage(`{"a":1,"b":2}`)) {
		t.Error("expected canonical JSON keys regardless of field order")
	}
}

func TestEvictionOrderUnderChurn(t *testing.T) {
	c := New(WithMaxSize(2), WithTTL(time.Hour))

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), "chat", json.RawMessage(`0`))
	}
	if c.Len() != 2 {
		t.Fatalf("expected cache bounded at 2, got %d", c.Len())
	}
	if !c.Has("k3") || !c.Has("k4") {
		t.Error("expected the two newest entries retained")
	}
}

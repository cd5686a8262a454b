// Package ratelimit implements a sliding-window request quota: at most N
// requests within any rolling window. Only calls that actually reach the
// remote service consume quota; cache hits never do.
package ratelimit

import (
	"log"
	"sync"
	"time"

	"github.com/bulwark-ai/bulwark/pkg/models"
)

// Clock provides time operations for the limiter.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store is the durable backend for the request window. Writes are
// best-effort: failures are logged, never propagated.
type Store interface {
	LoadWindow() ([]time.Time, error)
	AppendWindow(ts time.Time) error
	TrimWindow(before time.Time) error
	ClearWindow() error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets a custom clock. Useful for testing window behavior.
func WithClock(clk Clock) Option {
	return func(l *Limiter) { l.clock = clk }
}

// WithStore attaches a durable backend. The persisted window is hydrated at
// construction with stale timestamps purged.
func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

// Limiter tracks request timestamps within a rolling window.
// Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	clock  Clock
	store  Store
	events []time.Time // ascending
}

// New creates a Limiter allowing max requests per window.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		max:    max,
		window: window,
		clock:  realClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store != nil {
		l.hydrate()
	}
	return l
}

func (l *Limiter) hydrate() {
	events, err := l.store.LoadWindow()
	if err != nil {
		log.Printf("ratelimit: hydrate failed: %v", err)
		return
	}
	cutoff := l.clock.Now().Add(-l.window)
	for _, ts := range events {
		if ts.After(cutoff) {
			l.events = append(l.events, ts)
		}
	}
	if len(l.events) < len(events) {
		if err := l.store.TrimWindow(cutoff); err != nil {
			log.Printf("ratelimit: trim persisted window: %v", err)
		}
	}
}

// Check returns the current window status. Pure read: no mutation.
func (l *Limiter) Check() models.RateLimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked(l.clock.Now())
}

// Consume records one request iff the window is under quota, returning
// whether the request was admitted. Stale timestamps are purged first.
func (l *Limiter) Consume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.purgeLocked(now)
	if len(l.events) >= l.max {
		return false
	}
	l.events = append(l.events, now)
	if l.store != nil {
		if err := l.store.AppendWindow(now); err != nil {
			log.Printf("ratelimit: persist event: %v", err)
		}
	}
	return true
}

// Reset clears the window, in memory and in the durable store.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = nil
	if l.store != nil {
		if err := l.store.ClearWindow(); err != nil {
			log.Printf("ratelimit: clear persisted window: %v", err)
		}
	}
}

// TimeUntilReset returns how long until the oldest in-window request exits
// the window, or zero when the window is empty.
func (l *Limiter) TimeUntilReset() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for _, ts := range l.events {
		if ts.After(now.Add(-l.window)) {
			return ts.Add(l.window).Sub(now)
		}
	}
	return 0
}

func (l *Limiter) statusLocked(now time.Time) models.RateLimitStatus {
	cutoff := now.Add(-l.window)
	count := 0
	var oldest time.Time
	for _, ts := range l.events {
		if ts.After(cutoff) {
			if count == 0 {
				oldest = ts
			}
			count++
		}
	}

	status := models.RateLimitStatus{
		Remaining: l.max - count,
		Limited:   count >= l.max,
		ResetAt:   now,
	}
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	if count > 0 {
		status.ResetAt = oldest.Add(l.window)
	}
	return status
}

func (l *Limiter) purgeLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := 0
	for keep < len(l.events) && !l.events[keep].After(cutoff) {
		keep++
	}
	if keep == 0 {
		return
	}
	l.events = append([]time.Time(nil), l.events[keep:]...)
	if l.store != nil {
		if err := l.store.TrimWindow(cutoff); err != nil {
			log.Printf("ratelimit: trim persisted window: %v", err)
		}
	}
}

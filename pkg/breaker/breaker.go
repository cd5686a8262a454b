// Package breaker implements a consecutive-failure circuit breaker with
// closed, open, and half-open states. State is process-lifetime only; it is
// deliberately not persisted.
package breaker

import (
	"sync"
	"time"

	"github.com/bulwark-ai/bulwark/pkg/models"
)

const (
	// DefaultThreshold is the consecutive-failure count that trips the circuit.
	DefaultThreshold = 5
	// DefaultCooldown is how long the circuit stays open before a probe.
	DefaultCooldown = 5 * time.Minute
)

// Clock provides time operations for the breaker.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock sets a custom clock. Useful for testing cooldown behavior.
func WithClock(clk Clock) Option {
	return func(b *Breaker) { b.clock = clk }
}

// Breaker tracks consecutive failures and gates attempts accordingly.
// Safe for concurrent use.
type Breaker struct {
	mu            sync.Mutex
	threshold     int
	cooldown      time.Duration
	clock         Clock
	status        models.CircuitStatus
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

// New creates a closed Breaker that opens after threshold consecutive
// failures and probes again after the cooldown elapses.
func New(threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     realClock{},
		status:    models.CircuitClosed,
	}
	if b.threshold <= 0 {
		b.threshold = DefaultThreshold
	}
	if b.cooldown <= 0 {
		b.cooldown = DefaultCooldown
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether an attempt may proceed. While open it returns false
// until the cooldown elapses, then grants exactly one half-open probe;
// further calls return false until that probe resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case models.CircuitClosed:
		return true
	case models.CircuitOpen:
		if b.clock.Now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.status = models.CircuitHalfOpen
		b.probeInFlight = true
		return true
	default: // half-open
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
}

// RecordSuccess zeroes the failure counter and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.status = models.CircuitClosed
	b.probeInFlight = false
	b.openedAt = time.Time{}
}

// RecordFailure increments the failure counter. It trips the circuit at the
// threshold; a failed half-open probe re-opens it and restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.status == models.CircuitHalfOpen {
		b.status = models.CircuitOpen
		b.openedAt = b.clock.Now()
		b.probeInFlight = false
		return
	}
	if b.status == models.CircuitClosed && b.failures >= b.threshold {
		b.status = models.CircuitOpen
		b.openedAt = b.clock.Now()
	}
}

// ReleaseProbe returns an unused half-open probe slot. Callers that reserve
// an attempt via Allow but resolve without reaching the remote service (for
// example on a cache hit) must release it so the probe can be granted again.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status == models.CircuitHalfOpen {
		b.probeInFlight = false
	}
}

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.status = models.CircuitClosed
	b.failures = 0
	b.openedAt = time.Time{}
	b.probeInFlight = false
}

// RetryIn returns how long until the open circuit permits a probe, or zero
// when the circuit is not open.
func (b *Breaker) RetryIn() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != models.CircuitOpen {
		return 0
	}
	remaining := b.cooldown - b.clock.Now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns a point-in-time copy of breaker state.
func (b *Breaker) Snapshot() models.CircuitSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return models.CircuitSnapshot{
		Status:              b.status,
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
	}
}

// Package orchestrator is the entry point of the resilience layer. For each
// logical operation it sequences preference-check, circuit-check,
// cache-check, rate-limit-check, queued execution, outcome recording, and
// fallback on failure, and exposes observable state for UI binding.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bulwark-ai/bulwark/pkg/breaker"
	"github.com/bulwark-ai/bulwark/pkg/cache"
	"github.com/bulwark-ai/bulwark/pkg/config"
	"github.com/bulwark-ai/bulwark/pkg/fallback"
	"github.com/bulwark-ai/bulwark/pkg/faults"
	"github.com/bulwark-ai/bulwark/pkg/models"
	"github.com/bulwark-ai/bulwark/pkg/queue"
	"github.com/bulwark-ai/bulwark/pkg/ratelimit"
)

// RemoteFunc performs one remote call for an operation kind. The layer
// treats it as opaque: it returns a payload or a tagged error.
type RemoteFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Auditor receives a record for every completed invocation.
type Auditor interface {
	Record(ctx context.Context, rec models.InvocationRecord) error
}

// Orchestrator mediates every remote call through the cache, rate limiter,
// circuit breaker, request queue, and fallback engine. Construct one per
// client instance; all collaborators are injected, there is no package-level
// state.
type Orchestrator struct {
	cfg       *config.Config
	cache     *cache.Cache
	limiter   *ratelimit.Limiter
	breaker   *breaker.Breaker
	queue     *queue.Queue
	fallbacks *fallback.Engine
	callerID  string

	mu            sync.Mutex
	auditor       Auditor
	remotes       map[string]RemoteFunc
	remoteEnabled bool
	premium       bool
	inFlight      int
	lastErr       string
	usingFallback bool

	debounce debouncer
}

// New creates an Orchestrator wired with all dependencies.
func New(cfg *config.Config, c *cache.Cache, l *ratelimit.Limiter, b *breaker.Breaker, q *queue.Queue, fb *fallback.Engine) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		cache:         c,
		limiter:       l,
		breaker:       b,
		queue:         q,
		fallbacks:     fb,
		callerID:      uuid.NewString(),
		remotes:       make(map[string]RemoteFunc),
		remoteEnabled: cfg.Preferences.RemoteEnabled,
		premium:       cfg.Preferences.Premium,
	}
}

// Register installs the remote function for an operation kind.
func (o *Orchestrator) Register(kind string, fn RemoteFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.remotes[kind] = fn
}

// SetAuditor installs an optional audit sink for invocation outcomes.
func (o *Orchestrator) SetAuditor(a Auditor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.auditor = a
}

// SetRemoteEnabled flips the user preference for remote features. When
// disabled, every invocation goes straight to its fallback.
func (o *Orchestrator) SetRemoteEnabled(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.remoteEnabled = enabled
}

// SetPremium flips the caller tier used for queue priority.
func (o *Orchestrator) SetPremium(premium bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.premium = premium
}

// ClearCache drops all cached responses.
func (o *Orchestrator) ClearCache() {
	o.cache.Clear()
}

// State returns the observable state for UI binding.
func (o *Orchestrator) State() models.OrchestratorState {
	quota := o.limiter.Check()
	position := o.queue.Position(o.callerID)

	o.mu.Lock()
	defer o.mu.Unlock()
	return models.OrchestratorState{
		IsLoading:       o.inFlight > 0,
		LastError:       o.lastErr,
		IsUsingFallback: o.usingFallback,
		RemainingQuota:  quota.Remaining,
		QuotaResetAt:    quota.ResetAt,
		QueuePosition:   position,
	}
}

// Circuit returns a point-in-time copy of breaker state.
func (o *Orchestrator) Circuit() models.CircuitSnapshot {
	return o.breaker.Snapshot()
}

// Invoke runs one logical operation through the full pipeline. It resolves
// to either a full-confidence result or an explicitly degraded one; it
// returns an error only for rate-limit, queue-capacity, cancellation, and
// non-fallback-eligible failures.
func (o *Orchestrator) Invoke(ctx context.Context, kind string, input any) (models.Result, error) {
	start := time.Now()
	res, err := o.invoke(ctx, kind, input, start)
	o.recordAudit(kind, res, err, time.Since(start))
	return res, err
}

func (o *Orchestrator) invoke(ctx context.Context, kind string, input any, start time.Time) (models.Result, error) {
	o.trackLoading(1)
	defer o.trackLoading(-1)

	// Rapid repeated calls for the same kind coalesce: only the newest
	// invocation survives the debounce window.
	if window := o.cfg.Debounce.Window; window > 0 {
		gen := o.debounce.bump(kind)
		select {
		case <-time.After(window):
		case <-ctx.Done():
			return models.Result{}, ctx.Err()
		}
		if o.debounce.current(kind) != gen {
			return models.Result{}, faults.ErrSuperseded
		}
	}

	// Preference gate: no remote attempt at all when disabled.
	if !o.remoteAllowed() {
		return o.degrade(kind, input, start, faults.ErrRemoteDisabled)
	}

	// Circuit gate. Allow may reserve the single half-open probe, so every
	// early return below must release it.
	if !o.breaker.Allow() {
		circuitErr := &faults.CircuitOpenError{RetryIn: o.breaker.RetryIn()}
		if o.fallbacks.Has(kind) {
			return o.degrade(kind, input, start, circuitErr)
		}
		o.noteError(circuitErr)
		log.Printf("orchestrator: %s unavailable: %v", kind, circuitErr)
		return models.Result{
			Kind:     kind,
			Source:   models.SourceUnavailable,
			Degraded: true,
			Latency:  time.Since(start),
		}, nil
	}

	// Cache: a hit returns immediately and consumes no quota.
	key := cache.Key(kind, input)
	if data, ok := o.cache.Get(key); ok {
		o.breaker.ReleaseProbe()
		o.noteSuccess()
		return models.Result{
			Kind:    kind,
			Data:    data,
			Source:  models.SourceCache,
			Latency: time.Since(start),
		}, nil
	}

	// Quota: a cost boundary the caller must act on, never absorbed by
	// fallback.
	if !o.limiter.Consume() {
		o.breaker.ReleaseProbe()
		limitErr := &faults.RateLimitError{ResetIn: o.limiter.TimeUntilReset()}
		o.noteError(limitErr)
		return models.Result{}, limitErr
	}

	remote, premium, err := o.remoteFor(kind)
	if err != nil {
		o.breaker.ReleaseProbe()
		o.noteError(err)
		return models.Result{}, err
	}
	payload, err := encodeInput(input)
	if err != nil {
		o.breaker.ReleaseProbe()
		o.noteError(err)
		return models.Result{}, err
	}

	data, err := o.queue.Enqueue(ctx, o.callerID, premium, func(ctx context.Context) (json.RawMessage, error) {
		return remote(ctx, payload)
	})
	if err == nil {
		o.breaker.RecordSuccess()
		o.cache.Set(key, kind, data)
		o.noteSuccess()
		return models.Result{
			Kind:    kind,
			Data:    data,
			Source:  models.SourceRemote,
			Latency: time.Since(start),
		}, nil
	}

	// Cancellation and capacity rejections never reached the remote
	// service, so they count neither for nor against the circuit.
	var full *faults.QueueFullError
	if errors.As(err, &full) || errors.Is(err, faults.ErrCancelled) ||
		errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		o.breaker.ReleaseProbe()
		o.noteError(err)
		return models.Result{}, err
	}

	o.breaker.RecordFailure()
	o.noteError(err)
	if faults.ShouldFallback(err) && o.fallbacks.Has(kind) {
		log.Printf("orchestrator: %s falling back: %v", kind, err)
		return o.degrade(kind, input, start, err)
	}
	return models.Result{}, err
}

// recordAudit hands the invocation outcome to the audit sink without
// blocking the caller. Superseded calls are coalescing noise, not outcomes.
func (o *Orchestrator) recordAudit(kind string, res models.Result, err error, elapsed time.Duration) {
	o.mu.Lock()
	a := o.auditor
	o.mu.Unlock()
	if a == nil || errors.Is(err, faults.ErrSuperseded) {
		return
	}

	rec := models.InvocationRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Source:    res.Source,
		Degraded:  res.Degraded,
		LatencyMs: elapsed.Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	go func() {
		if err := a.Record(context.Background(), rec); err != nil {
			log.Printf("orchestrator: audit record failed: %v", err)
		}
	}()
}

// degrade serves the deterministic substitute for kind. When the operation
// defines no fallback the causing error propagates instead.
func (o *Orchestrator) degrade(kind string, input any, start time.Time, cause error) (models.Result, error) {
	data, err := o.fallbacks.Invoke(kind, input)
	if err != nil {
		if errors.Is(err, fallback.ErrNoFallback) {
			o.noteError(cause)
			return models.Result{}, cause
		}
		o.noteError(err)
		return models.Result{}, fmt.Errorf("fallback for %s: %w", kind, err)
	}

	o.mu.Lock()
	o.usingFallback = true
	if cause != nil && !errors.Is(cause, faults.ErrRemoteDisabled) {
		o.lastErr = cause.Error()
	}
	o.mu.Unlock()

	return models.Result{
		Kind:     kind,
		Data:     data,
		Source:   models.SourceFallback,
		Degraded: true,
		Latency:  time.Since(start),
	}, nil
}

func (o *Orchestrator) remoteAllowed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.remoteEnabled
}

func (o *Orchestrator) remoteFor(kind string) (RemoteFunc, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn, ok := o.remotes[kind]
	if !ok {
		return nil, false, fmt.Errorf("no remote registered for operation %q", kind)
	}
	return fn, o.premium, nil
}

func (o *Orchestrator) trackLoading(delta int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight += delta
}

func (o *Orchestrator) noteError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.lastErr = err.Error()
	}
}

func (o *Orchestrator) noteSuccess() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastErr = ""
	o.usingFallback = false
}

func encodeInput(input any) (json.RawMessage, error) {
	switch v := input.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("encode input: %w", err)
		}
		return json.RawMessage(data), nil
	}
}

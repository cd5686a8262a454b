// Package faults defines the error taxonomy for the resilience layer.
//
// Two orthogonal classifications drive control flow:
//
//   - Retryable: the request queue re-schedules the attempt (network faults,
//     timeouts, 5xx and 429 remote responses).
//   - Fallback-eligible: the orchestrator absorbs the failure and serves the
//     deterministic substitute instead of propagating the error.
//
// Rate-limit and queue-capacity errors are neither: they are cost and
// capacity boundaries the caller must act on, so they always surface.
package faults

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrSuperseded resolves a debounced invocation that was replaced by a
	// newer call for the same operation before it ran.
	ErrSuperseded = errors.New("invocation superseded by a newer call")

	// ErrCancelled resolves a request cancelled while still queued.
	ErrCancelled = errors.New("request cancelled before execution")

	// ErrRemoteDisabled is returned when remote features are switched off by
	// user preference and the operation defines no fallback.
	ErrRemoteDisabled = errors.New("remote features disabled by preference")
)

// RemoteError is a non-2xx response from the remote service.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
}

// NetworkError wraps a transport-level failure reaching the remote service.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError marks a request that exceeded its per-attempt deadline.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.After)
}

// InvalidResponseError marks a remote response that failed validation.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid remote response: %s", e.Reason)
}

// RateLimitError is returned when the local sliding-window quota is
// exhausted. It is never absorbed by the fallback path.
type RateLimitError struct {
	ResetIn time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets in %s", e.ResetIn.Round(time.Second))
}

// CircuitOpenError is returned when the breaker refuses an attempt. A zero
// RetryIn means the cooldown has elapsed and a recovery probe is already in
// flight, so there is no fixed wait to report.
type CircuitOpenError struct {
	RetryIn time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.RetryIn <= 0 {
		return "circuit open, recovery probe in flight"
	}
	return fmt.Sprintf("circuit open, retry in %s", e.RetryIn.Round(time.Second))
}

// QueueFullError is returned when the request queue is at capacity.
type QueueFullError struct {
	Depth int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("request queue full (%d pending), try again later", e.Depth)
}

// Classified lets callers tag their own remote-function errors with an
// explicit fallback decision, overriding the built-in classification.
type Classified interface {
	error
	FallbackEligible() bool
}

// Retryable reports whether the queue should re-schedule a failed attempt:
// network faults, timeouts, and 5xx or 429 remote responses.
func Retryable(err error) bool {
	var netErr *NetworkError
	var toErr *TimeoutError
	if errors.As(err, &netErr) || errors.As(err, &toErr) {
		return true
	}
	var remErr *RemoteError
	if errors.As(err, &remErr) {
		return remErr.StatusCode >= 500 || remErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// ShouldFallback reports whether the orchestrator should absorb the failure
// and serve the deterministic substitute. Rate-limit, queue-full, and
// non-429 4xx errors are excluded: the first two must surface to the caller,
// and client errors indicate a bad request a fallback would only mask.
func ShouldFallback(err error) bool {
	var classified Classified
	if errors.As(err, &classified) {
		return classified.FallbackEligible()
	}
	var rlErr *RateLimitError
	var qfErr *QueueFullError
	if errors.As(err, &rlErr) || errors.As(err, &qfErr) {
		return false
	}
	var netErr *NetworkError
	var toErr *TimeoutError
	var invErr *InvalidResponseError
	var coErr *CircuitOpenError
	if errors.As(err, &netErr) || errors.As(err, &toErr) ||
		errors.As(err, &invErr) || errors.As(err, &coErr) {
		return true
	}
	var remErr *RemoteError
	if errors.As(err, &remErr) {
		return remErr.StatusCode >= 500
	}
	return false
}

// Package fallback holds the deterministic substitute computations used
// when the remote path is unavailable or degraded. Fallbacks are
// zero-latency and zero-cost: they never touch the network, the quota, or
// the circuit breaker.
package fallback

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Func computes a deterministic substitute result from the operation input.
type Func func(input any) (json.RawMessage, error)

// ErrNoFallback is returned by Invoke for operations without a registered
// fallback.
var ErrNoFallback = errors.New("no fallback defined for operation")

// Engine is a registry of per-operation fallback functions.
// Safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{funcs: make(map[string]Func)}
}

// Register installs the fallback for an operation kind, replacing any
// previous one.
func (e *Engine) Register(kind string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[kind] = fn
}

// Has reports whether the operation kind defines a fallback.
func (e *Engine) Has(kind string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.funcs[kind]
	return ok
}

// Invoke runs the fallback for kind. It returns ErrNoFallback when none is
// registered.
func (e *Engine) Invoke(kind string, input any) (json.RawMessage, error) {
	e.mu.RLock()
	fn, ok := e.funcs[kind]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFallback, kind)
	}
	return fn(input)
}

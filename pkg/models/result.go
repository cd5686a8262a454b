package models

import (
	"encoding/json"
	"time"
)

// ResultSource identifies which path produced a result.
type ResultSource string

const (
	// SourceRemote is a full-confidence result from the remote service.
	SourceRemote ResultSource = "remote"
	// SourceCache is a previously cached remote result.
	SourceCache ResultSource = "cache"
	// SourceFallback is a deterministic local substitute.
	SourceFallback ResultSource = "fallback"
	// SourceUnavailable marks a degraded empty result returned when the
	// circuit is open and the operation defines no fallback.
	SourceUnavailable ResultSource = "unavailable"
)

// Result is what every invocation resolves to: either a full-confidence
// remote/cached payload or an explicitly degraded substitute.
type Result struct {
	Kind     string          `json:"kind"`
	Data     json.RawMessage `json:"data,omitempty"`
	Source   ResultSource    `json:"source"`
	Degraded bool            `json:"degraded"`
	Latency  time.Duration   `json:"latency"`
}

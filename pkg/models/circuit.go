package models

import "time"

// CircuitStatus is the breaker state machine position.
type CircuitStatus string

const (
	CircuitClosed   CircuitStatus = "closed"
	CircuitOpen     CircuitStatus = "open"
	CircuitHalfOpen CircuitStatus = "half-open"
)

// CircuitSnapshot is a point-in-time copy of breaker state.
type CircuitSnapshot struct {
	Status              CircuitStatus `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenedAt            time.Time     `json:"opened_at,omitempty"`
}

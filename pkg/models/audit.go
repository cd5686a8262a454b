package models

import "time"

// InvocationRecord is one audited trip through the orchestration pipeline.
type InvocationRecord struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"`
	Source    ResultSource `json:"source"`
	Degraded  bool         `json:"degraded"`
	Error     string       `json:"error,omitempty"`
	LatencyMs int64        `json:"latency_ms"`
	CreatedAt time.Time    `json:"created_at"`
}

// InvocationQuery filters audit queries. Zero values match everything.
type InvocationQuery struct {
	Kind       string
	Since      time.Time
	ErrorsOnly bool
	Limit      int
}

// InvocationStat is an aggregate count for one kind on one day.
type InvocationStat struct {
	Kind  string `json:"kind"`
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

package models

import "time"

// OrchestratorState is the observable state exposed for UI binding.
type OrchestratorState struct {
	IsLoading       bool      `json:"is_loading"`
	LastError       string    `json:"last_error,omitempty"`
	IsUsingFallback bool      `json:"is_using_fallback"`
	RemainingQuota  int       `json:"remaining_quota"`
	QuotaResetAt    time.Time `json:"quota_reset_at"`
	QueuePosition   int       `json:"queue_position"`
}

package models

import "time"

// RateLimitStatus is a point-in-time view of the sliding window.
type RateLimitStatus struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Limited   bool      `json:"limited"`
}

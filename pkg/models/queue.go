package models

// RequestStatus is the lifecycle state of a queued request.
type RequestStatus string

const (
	RequestQueued     RequestStatus = "queued"
	RequestProcessing RequestStatus = "processing"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
	RequestCancelled  RequestStatus = "cancelled"
)

// QueueStats aggregates executor activity.
type QueueStats struct {
	Queued     int   `json:"queued"`
	Processing int   `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}

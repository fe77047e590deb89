package models

import "time"

// Sync run statuses. SyncStatusIdle only ever appears in the in-memory
// status snapshot, never in a history row.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
	SyncStatusPartial = "partial"
)

// Trigger types recorded on every history entry.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerStartup   = "startup"
)

// Standardized sync error codes. PARTIAL_SUCCESS and TRANSFORM_FAILED are
// outcome markers recorded in history/status rows; they are never returned
// as errors.
const (
	ErrCodeAPIUnavailable = "API_UNAVAILABLE"
	ErrCodeAuthFailed     = "AUTH_FAILED"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeConfigError    = "CONFIG_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeUnknown        = "UNKNOWN"
	ErrCodePartialSuccess = "PARTIAL_SUCCESS"
	ErrCodeTransformFail  = "TRANSFORM_FAILED"
)

// SyncHistoryEntry is one persisted row per sync attempt. CompletedAt,
// DurationMs and the error fields stay nil while the run is in flight.
type SyncHistoryEntry struct {
	ID           int64      `json:"id"`
	Status       string     `json:"status"`
	TriggerType  string     `json:"triggerType"`
	TriggeredBy  *string    `json:"triggeredBy"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt"`
	DurationMs   *int64     `json:"durationMs"`
	ItemsSynced  int        `json:"itemsSynced"`
	ItemsFailed  int        `json:"itemsFailed"`
	ErrorMessage *string    `json:"errorMessage"`
	ErrorDetails *string    `json:"errorDetails"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// SyncStatus is the process-wide snapshot of the most recent sync. It is
// written only by the sync service and read by the HTTP layer.
type SyncStatus struct {
	Status       string     `json:"status"`
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
	ItemCount    int        `json:"itemCount"`
	ItemsSynced  int        `json:"itemsSynced"`
	ItemsFailed  int        `json:"itemsFailed"`
	ErrorCode    string     `json:"errorCode,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// IdleStatus returns the snapshot every process starts from.
func IdleStatus() *SyncStatus {
	return &SyncStatus{Status: SyncStatusIdle}
}

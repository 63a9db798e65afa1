package models

import "time"

// Job statuses.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

// Trigger types record where a job came from. They never affect queue logic.
const (
	TriggerButton = "button"
	TriggerManual = "manual"
	TriggerRetry  = "retry"
)

// SyncJob represents one queued attempt to mirror a source page locally.
type SyncJob struct {
	ID           int64      `json:"id"`
	PageID       string     `json:"page_id"`
	TriggerType  string     `json:"trigger_type"`
	Status       string     `json:"status"`
	Attempt      int        `json:"attempt"`
	MaxAttempts  int        `json:"max_attempts"`
	NextRunAt    *time.Time `json:"next_run_at"`
	LockedAt     *time.Time `json:"locked_at"`
	LockedBy     *string    `json:"locked_by"`
	Payload      string     `json:"payload"`
	DedupeKey    string     `json:"dedupe_key"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Active reports whether the job still occupies its dedupe key.
func (j *SyncJob) Active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}

// Terminal reports whether the job reached a final state.
func (j *SyncJob) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// DedupeKeyForPage derives the dedupe key used to absorb duplicate enqueues.
func DedupeKeyForPage(pageID string) string {
	return "page:" + pageID
}

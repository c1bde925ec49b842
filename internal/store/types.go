// Package store persists the job audit trail: every submission, observed
// state change, and output retrieval, so batch activity survives session
// teardown and daemon restarts.
package store

import "time"

// Event kinds recorded in the audit trail.
const (
	EventSubmitted = "submitted"
	EventState     = "state"
	EventOutput    = "output"
)

// JobEvent is one recorded fact about a job.
type JobEvent struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	JobID     string    `json:"job_id"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Store interface defines the methods for persistent storage
type Store interface {
	Close() error
	RecordSubmission(sessionID, jobID, dataset string) error
	RecordJobState(sessionID, jobID, state string) error
	RecordOutput(sessionID, jobID, detail string) error
	JobHistory(jobID string, limit int) ([]JobEvent, error)
	RecentEvents(limit int) ([]JobEvent, error)
}

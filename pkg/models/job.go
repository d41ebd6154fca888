package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job tracks async AI triage jobs. POST /api/v1/issues/{id}/analyze returns a
// job_id; the client polls GET /api/v1/jobs/{job_id} until status is
// completed or failed.
type Job struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	AppID        uuid.UUID  `db:"app_id"        json:"app_id"`
	Type         string     `db:"type"          json:"type"`
	Status       string     `db:"status"        json:"status"`
	IssueID      *uuid.UUID `db:"issue_id"      json:"issue_id,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}

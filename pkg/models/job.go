package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "PENDING"
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// Phase names used in job sub-records and notification payloads.
const (
	PhaseResearch = "research"
	PhaseAudit    = "audit"
)

// Progress checkpoints persisted as a job moves through its phases.
// The sequence is monotonic on the happy path: 0 → 10 → 50 → 60 → 100.
const (
	ProgressCreated           = 0
	ProgressResearchStarted   = 10
	ProgressResearchCompleted = 50
	ProgressAuditStarted      = 60
	ProgressAuditCompleted    = 100
)

// Job tracks one end-to-end policy analysis request. The API returns a job id
// on POST /api/v1/jobs; clients follow progress over the websocket endpoint or
// by polling GET /api/v1/jobs/{job_id} until status is COMPLETED or FAILED.
//
// The audit sub-record may only leave PENDING once the research sub-record is
// COMPLETED and PolicyID is set; the store and scheduler both enforce this.
type Job struct {
	ID                 uuid.UUID `db:"id"                  json:"id"`
	SourceURL          string    `db:"source_url"          json:"source_url"`
	Status             string    `db:"status"              json:"status"`
	ProgressPercentage int       `db:"progress_percentage" json:"progress_percentage"`

	ResearchStatus      string     `db:"research_status"       json:"research_status"`
	ResearchStartedAt   *time.Time `db:"research_started_at"   json:"research_started_at,omitempty"`
	ResearchCompletedAt *time.Time `db:"research_completed_at" json:"research_completed_at,omitempty"`
	ResearchError       *string    `db:"research_error"        json:"research_error,omitempty"`
	ResearchConfidence  *float64   `db:"research_confidence"   json:"research_confidence,omitempty"`
	PolicyID            *int64     `db:"policy_id"             json:"policy_id,omitempty"`

	AuditStatus      string     `db:"audit_status"       json:"audit_status"`
	AuditStartedAt   *time.Time `db:"audit_started_at"   json:"audit_started_at,omitempty"`
	AuditCompletedAt *time.Time `db:"audit_completed_at" json:"audit_completed_at,omitempty"`
	AuditError       *string    `db:"audit_error"        json:"audit_error,omitempty"`
	AuditConfidence  *float64   `db:"audit_confidence"   json:"audit_confidence,omitempty"`
	AuditReportID    *int64     `db:"audit_report_id"    json:"audit_report_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the job's hard TTL has passed.
func (j *Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.After(now)
}

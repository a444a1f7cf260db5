package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/policyglass/policyglass/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface. All database operations go through here.
// The job pipeline treats it as the single source of truth: the scheduler's
// in-memory queue is rebuilt from ListPendingJobs after a restart.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	JobExists(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error
	ListPendingJobs(ctx context.Context, limit int) ([]uuid.UUID, error)
	DeleteExpiredJobs(ctx context.Context, now time.Time) (int64, error)

	CreatePolicy(ctx context.Context, policy *models.Policy) error
	GetPolicy(ctx context.Context, id int64) (*models.Policy, error)

	CreateAuditReport(ctx context.Context, report *models.AuditReport) error
	GetAuditReport(ctx context.Context, id int64) (*models.AuditReport, error)
}

// JobUpdateParams collects the fields touched by a partial job update.
// Exported so alternative Store implementations and test fakes can apply
// the same options the Postgres store does.
type JobUpdateParams struct {
	Status              *string
	ProgressPercentage  *int
	ResearchStatus      *string
	ResearchStartedAt   *time.Time
	ResearchCompletedAt *time.Time
	ResearchError       *string
	ResearchConfidence  *float64
	PolicyID            *int64
	AuditStatus         *string
	AuditStartedAt      *time.Time
	AuditCompletedAt    *time.Time
	AuditError          *string
	AuditConfidence     *float64
	AuditReportID       *int64
}

// JobUpdateOption selects which job fields a partial update touches.
type JobUpdateOption func(*JobUpdateParams)

// ApplyJobUpdates folds a list of options into one JobUpdateParams.
func ApplyJobUpdates(opts ...JobUpdateOption) *JobUpdateParams {
	params := &JobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}

func WithStatus(status string) JobUpdateOption {
	return func(p *JobUpdateParams) { p.Status = &status }
}

func WithProgress(pct int) JobUpdateOption {
	return func(p *JobUpdateParams) { p.ProgressPercentage = &pct }
}

func WithResearchStatus(status string) JobUpdateOption {
	return func(p *JobUpdateParams) { p.ResearchStatus = &status }
}

func WithResearchStarted(t time.Time) JobUpdateOption {
	return func(p *JobUpdateParams) { p.ResearchStartedAt = &t }
}

func WithResearchCompleted(t time.Time) JobUpdateOption {
	return func(p *JobUpdateParams) { p.ResearchCompletedAt = &t }
}

func WithResearchError(msg string) JobUpdateOption {
	return func(p *JobUpdateParams) { p.ResearchError = &msg }
}

func WithResearchConfidence(c float64) JobUpdateOption {
	return func(p *JobUpdateParams) { p.ResearchConfidence = &c }
}

func WithPolicyID(id int64) JobUpdateOption {
	return func(p *JobUpdateParams) { p.PolicyID = &id }
}

func WithAuditStatus(status string) JobUpdateOption {
	return func(p *JobUpdateParams) { p.AuditStatus = &status }
}

func WithAuditStarted(t time.Time) JobUpdateOption {
	return func(p *JobUpdateParams) { p.AuditStartedAt = &t }
}

func WithAuditCompleted(t time.Time) JobUpdateOption {
	return func(p *JobUpdateParams) { p.AuditCompletedAt = &t }
}

func WithAuditError(msg string) JobUpdateOption {
	return func(p *JobUpdateParams) { p.AuditError = &msg }
}

func WithAuditConfidence(c float64) JobUpdateOption {
	return func(p *JobUpdateParams) { p.AuditConfidence = &c }
}

func WithAuditReportID(id int64) JobUpdateOption {
	return func(p *JobUpdateParams) { p.AuditReportID = &id }
}

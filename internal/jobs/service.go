// Package jobs exposes the job lifecycle operations the HTTP surface is
// built on: create, status view assembly, cancel, and pipeline stats.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/policyglass/policyglass/internal/cache"
	"github.com/policyglass/policyglass/internal/config"
	"github.com/policyglass/policyglass/internal/scheduler"
	"github.com/policyglass/policyglass/internal/store"
	"github.com/policyglass/policyglass/pkg/models"
)

// Queue is the slice of the scheduler the service needs.
type Queue interface {
	Enqueue(jobID uuid.UUID)
	RemoveFromQueue(jobID uuid.UUID) bool
	Stats() scheduler.Stats
}

// PolicySummary is the trimmed policy view embedded in a job status. The
// full terms text is large and available at GET /api/v1/policies/{id}.
type PolicySummary struct {
	ID          int64     `json:"id"`
	CompanyName string    `json:"company_name"`
	SourceURL   string    `json:"source_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatusView is the job snapshot returned to clients: the flat job record
// plus the linked policy and audit report once those phases have produced
// them.
type StatusView struct {
	models.Job
	Policy      *PolicySummary      `json:"policy,omitempty"`
	AuditReport *models.AuditReport `json:"audit_report,omitempty"`
}

type Service struct {
	store  store.Store
	cache  cache.Cache
	queue  Queue
	jobTTL time.Duration
	logger *slog.Logger
}

func NewService(st store.Store, ca cache.Cache, queue Queue, cfg config.SchedulerConfig, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		cache:  ca,
		queue:  queue,
		jobTTL: cfg.JobTTL,
		logger: logger,
	}
}

// Create persists a new PENDING job, mirrors its status to the cache, and
// hands it to the queue for pickup on the next dispatch.
func (s *Service) Create(ctx context.Context, sourceURL string) (*models.Job, error) {
	now := time.Now().UTC()
	job := &models.Job{
		ID:                 uuid.New(),
		SourceURL:          sourceURL,
		Status:             models.JobStatusPending,
		ProgressPercentage: models.ProgressCreated,
		ResearchStatus:     models.JobStatusPending,
		AuditStatus:        models.JobStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
		ExpiresAt:          now.Add(s.jobTTL),
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	// Cache mirror is best effort; the store row is authoritative.
	_ = s.cache.SetJobStatus(ctx, job.ID, job.Status, s.jobTTL)

	s.queue.Enqueue(job.ID)

	s.logger.Info("job created",
		"job_id", job.ID,
		"source_url", sourceURL,
		"expires_at", job.ExpiresAt)
	return job, nil
}

// GetStatus returns the current snapshot of a job, or nil when no such job
// exists. Absence is not an error: callers translate nil into a 404.
//
// A job still PENDING is re-enqueued here, so a client polling a job the
// loop has not picked up yet nudges it back into the queue.
func (s *Service) GetStatus(ctx context.Context, jobID uuid.UUID) (*StatusView, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}

	if job.Status == models.JobStatusPending {
		s.queue.Enqueue(job.ID)
	}

	view := &StatusView{Job: *job}

	if job.PolicyID != nil {
		policy, err := s.store.GetPolicy(ctx, *job.PolicyID)
		switch {
		case err == nil:
			view.Policy = &PolicySummary{
				ID:          policy.ID,
				CompanyName: policy.CompanyName,
				SourceURL:   policy.SourceURL,
				CreatedAt:   policy.CreatedAt,
			}
		case errors.Is(err, store.ErrNotFound):
			s.logger.Warn("job references missing policy", "job_id", jobID, "policy_id", *job.PolicyID)
		default:
			return nil, fmt.Errorf("loading policy %d: %w", *job.PolicyID, err)
		}
	}

	if job.AuditReportID != nil {
		report, err := s.store.GetAuditReport(ctx, *job.AuditReportID)
		switch {
		case err == nil:
			view.AuditReport = report
		case errors.Is(err, store.ErrNotFound):
			s.logger.Warn("job references missing audit report", "job_id", jobID, "report_id", *job.AuditReportID)
		default:
			return nil, fmt.Errorf("loading audit report %d: %w", *job.AuditReportID, err)
		}
	}

	return view, nil
}

// Cancel removes a queued-but-undispatched job and reports whether it did.
// A job already dispatched or already finished is not touched.
func (s *Service) Cancel(_ context.Context, jobID uuid.UUID) bool {
	removed := s.queue.RemoveFromQueue(jobID)
	if removed {
		s.logger.Info("job removed from queue", "job_id", jobID)
	}
	return removed
}

// Stats returns the current pipeline snapshot.
func (s *Service) Stats() scheduler.Stats {
	return s.queue.Stats()
}

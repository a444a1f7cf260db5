package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/policyglass/policyglass/internal/notify"
	"github.com/policyglass/policyglass/internal/store"
	"github.com/policyglass/policyglass/pkg/models"
)

// processJob drives one dispatched job through its next phase transition.
// The transition to attempt is derived purely from persisted state, never
// from how the id got into the queue. Executor failures are converted into
// persisted FAILED state and notifications; nothing escapes this method.
//
// The return value asks the dispatcher to enqueue the id again once it has
// left the active set. Calling Enqueue from in here would be a no-op: the
// id is still active, so the membership check would swallow it.
func (s *Scheduler) processJob(jobID uuid.UUID) bool {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in processJob", "error", r, "job_id", jobID)
			s.markFailed(ctx, jobID, "system", fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		// Job disappeared between enqueue and dispatch. Not an error.
		s.logger.Debug("skipping vanished job", "job_id", jobID)
		return false
	}
	if err != nil {
		s.logger.Error("loading job failed", "job_id", jobID, "error", err)
		return false
	}
	if job.Expired(time.Now().UTC()) {
		s.logger.Debug("skipping expired job", "job_id", jobID)
		return false
	}

	switch {
	case job.ResearchStatus == models.JobStatusPending:
		return s.runResearch(ctx, job)
	case job.ResearchStatus == models.JobStatusCompleted &&
		job.AuditStatus == models.JobStatusPending &&
		job.PolicyID != nil:
		s.runAudit(ctx, job)
	case job.Status == models.JobStatusCompleted || job.Status == models.JobStatusFailed:
		// Terminal job dispatched by a stale queue entry. Nothing to do.
		s.logger.Debug("skipping terminal job", "job_id", jobID, "status", job.Status)
	default:
		// No actionable phase, e.g. a prior process died mid-phase. Mark the
		// job failed instead of redispatching it forever.
		s.logger.Warn("job stuck in unexpected state",
			"job_id", jobID,
			"status", job.Status,
			"research_status", job.ResearchStatus,
			"audit_status", job.AuditStatus)
		s.markFailed(ctx, jobID, "system",
			fmt.Sprintf("job stuck: research=%s audit=%s", job.ResearchStatus, job.AuditStatus), nil)
	}
	return false
}

// runResearch reports whether the job should be dispatched again for its
// audit phase.
func (s *Scheduler) runResearch(ctx context.Context, job *models.Job) bool {
	started := time.Now().UTC()
	err := s.store.UpdateJob(ctx, job.ID,
		store.WithStatus(models.JobStatusProcessing),
		store.WithProgress(models.ProgressResearchStarted),
		store.WithResearchStatus(models.JobStatusProcessing),
		store.WithResearchStarted(started),
	)
	if err != nil {
		s.logger.Error("marking research started failed", "job_id", job.ID, "error", err)
		return false
	}
	s.mirrorStatus(ctx, job.ID, models.JobStatusProcessing)
	s.broadcaster.Broadcast(notify.PhaseUpdate(job.ID, notify.PhaseUpdateData{
		Phase:     models.PhaseResearch,
		Status:    models.JobStatusProcessing,
		StartedAt: &started,
	}))

	phaseCtx, cancel := context.WithTimeout(ctx, s.cfg.PhaseTimeout)
	defer cancel()

	result, err := s.researchSvc.Run(phaseCtx, job.SourceURL)
	if err != nil {
		s.logger.Error("research phase failed", "job_id", job.ID, "error", err)
		s.failPhase(ctx, job.ID, models.PhaseResearch, err)
		return false
	}

	completed := time.Now().UTC()
	err = s.store.UpdateJob(ctx, job.ID,
		store.WithProgress(models.ProgressResearchCompleted),
		store.WithResearchStatus(models.JobStatusCompleted),
		store.WithResearchCompleted(completed),
		store.WithResearchConfidence(result.Confidence),
		store.WithPolicyID(result.PolicyID),
	)
	if err != nil {
		s.logger.Error("marking research completed failed", "job_id", job.ID, "error", err)
		s.failPhase(ctx, job.ID, models.PhaseResearch, err)
		return false
	}
	s.broadcaster.Broadcast(notify.PhaseUpdate(job.ID, notify.PhaseUpdateData{
		Phase:       models.PhaseResearch,
		Status:      models.JobStatusCompleted,
		CompletedAt: &completed,
		Confidence:  &result.Confidence,
		ResultID:    &result.PolicyID,
	}))

	// The audit phase is picked up on a later dispatch of the same id.
	return true
}

func (s *Scheduler) runAudit(ctx context.Context, job *models.Job) {
	started := time.Now().UTC()
	err := s.store.UpdateJob(ctx, job.ID,
		store.WithStatus(models.JobStatusProcessing),
		store.WithProgress(models.ProgressAuditStarted),
		store.WithAuditStatus(models.JobStatusProcessing),
		store.WithAuditStarted(started),
	)
	if err != nil {
		s.logger.Error("marking audit started failed", "job_id", job.ID, "error", err)
		return
	}
	s.mirrorStatus(ctx, job.ID, models.JobStatusProcessing)
	s.broadcaster.Broadcast(notify.PhaseUpdate(job.ID, notify.PhaseUpdateData{
		Phase:     models.PhaseAudit,
		Status:    models.JobStatusProcessing,
		StartedAt: &started,
	}))

	phaseCtx, cancel := context.WithTimeout(ctx, s.cfg.PhaseTimeout)
	defer cancel()

	result, err := s.auditSvc.Run(phaseCtx, *job.PolicyID)
	if err != nil {
		s.logger.Error("audit phase failed", "job_id", job.ID, "error", err)
		s.failPhase(ctx, job.ID, models.PhaseAudit, err)
		return
	}

	completed := time.Now().UTC()
	err = s.store.UpdateJob(ctx, job.ID,
		store.WithStatus(models.JobStatusCompleted),
		store.WithProgress(models.ProgressAuditCompleted),
		store.WithAuditStatus(models.JobStatusCompleted),
		store.WithAuditCompleted(completed),
		store.WithAuditConfidence(result.Confidence),
		store.WithAuditReportID(result.ReportID),
	)
	if err != nil {
		s.logger.Error("marking audit completed failed", "job_id", job.ID, "error", err)
		s.failPhase(ctx, job.ID, models.PhaseAudit, err)
		return
	}
	s.mirrorStatus(ctx, job.ID, models.JobStatusCompleted)

	s.broadcaster.Broadcast(notify.PhaseUpdate(job.ID, notify.PhaseUpdateData{
		Phase:       models.PhaseAudit,
		Status:      models.JobStatusCompleted,
		CompletedAt: &completed,
		Confidence:  &result.Confidence,
		ResultID:    &result.ReportID,
	}))
	s.broadcaster.Broadcast(notify.Complete(job.ID, notify.CompleteData{
		PolicyID:      *job.PolicyID,
		AuditReportID: result.ReportID,
		FinalScore:    result.TotalScore,
		LetterGrade:   result.LetterGrade,
		Confidence:    result.Confidence,
	}))
	s.logger.Info("job completed",
		"job_id", job.ID,
		"report_id", result.ReportID,
		"score", result.TotalScore,
		"grade", result.LetterGrade)
}

// failPhase persists a phase failure and the job-level FAILED status, then
// broadcasts the error. Failed jobs are never retried; they sit until reaped.
func (s *Scheduler) failPhase(ctx context.Context, jobID uuid.UUID, phase string, cause error) {
	msg := cause.Error()
	opts := []store.JobUpdateOption{store.WithStatus(models.JobStatusFailed)}
	switch phase {
	case models.PhaseResearch:
		opts = append(opts, store.WithResearchStatus(models.JobStatusFailed), store.WithResearchError(msg))
	case models.PhaseAudit:
		opts = append(opts, store.WithAuditStatus(models.JobStatusFailed), store.WithAuditError(msg))
	}
	if err := s.store.UpdateJob(ctx, jobID, opts...); err != nil {
		s.logger.Error("marking job failed failed", "job_id", jobID, "error", err)
	}
	s.mirrorStatus(ctx, jobID, models.JobStatusFailed)
	s.broadcaster.Broadcast(notify.Error(jobID, notify.ErrorData{Phase: phase, Error: msg}))
}

// markFailed is the stuck-job safety valve. It writes only the overall
// status so whatever phase detail exists is preserved for diagnosis.
func (s *Scheduler) markFailed(ctx context.Context, jobID uuid.UUID, phase, msg string, details map[string]any) {
	err := s.store.UpdateJob(ctx, jobID, store.WithStatus(models.JobStatusFailed))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("marking stuck job failed", "job_id", jobID, "error", err)
	}
	s.mirrorStatus(ctx, jobID, models.JobStatusFailed)
	s.broadcaster.Broadcast(notify.Error(jobID, notify.ErrorData{Phase: phase, Error: msg, Details: details}))
}

// mirrorStatus keeps the cache copy of the overall status fresh for cheap
// polling reads. Cache failures are ignored; the store stays authoritative.
func (s *Scheduler) mirrorStatus(ctx context.Context, jobID uuid.UUID, status string) {
	_ = s.cache.SetJobStatus(ctx, jobID, status, s.cfg.JobTTL)
}

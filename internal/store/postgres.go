package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/policyglass/policyglass/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, source_url, status, progress_percentage,
	research_status, research_started_at, research_completed_at, research_error, research_confidence, policy_id,
	audit_status, audit_started_at, audit_completed_at, audit_error, audit_confidence, audit_report_id,
	created_at, updated_at, expires_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.SourceURL, &j.Status, &j.ProgressPercentage,
		&j.ResearchStatus, &j.ResearchStartedAt, &j.ResearchCompletedAt, &j.ResearchError, &j.ResearchConfidence, &j.PolicyID,
		&j.AuditStatus, &j.AuditStartedAt, &j.AuditCompletedAt, &j.AuditError, &j.AuditConfidence, &j.AuditReportID,
		&j.CreatedAt, &j.UpdatedAt, &j.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, source_url, status, progress_percentage, research_status, audit_status, created_at, updated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.SourceURL, job.Status, job.ProgressPercentage,
		job.ResearchStatus, job.AuditStatus, job.CreatedAt, job.UpdatedAt, job.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) JobExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("job exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error {
	params := ApplyJobUpdates(opts...)

	query := `UPDATE jobs SET updated_at = $2`
	args := []any{id, time.Now().UTC()}
	argIdx := 3

	set := func(column string, value any) {
		query += fmt.Sprintf(", %s = $%d", column, argIdx)
		args = append(args, value)
		argIdx++
	}

	if params.Status != nil {
		set("status", *params.Status)
	}
	if params.ProgressPercentage != nil {
		set("progress_percentage", *params.ProgressPercentage)
	}
	if params.ResearchStatus != nil {
		set("research_status", *params.ResearchStatus)
	}
	if params.ResearchStartedAt != nil {
		set("research_started_at", *params.ResearchStartedAt)
	}
	if params.ResearchCompletedAt != nil {
		set("research_completed_at", *params.ResearchCompletedAt)
	}
	if params.ResearchError != nil {
		set("research_error", *params.ResearchError)
	}
	if params.ResearchConfidence != nil {
		set("research_confidence", *params.ResearchConfidence)
	}
	if params.PolicyID != nil {
		set("policy_id", *params.PolicyID)
	}
	if params.AuditStatus != nil {
		set("audit_status", *params.AuditStatus)
	}
	if params.AuditStartedAt != nil {
		set("audit_started_at", *params.AuditStartedAt)
	}
	if params.AuditCompletedAt != nil {
		set("audit_completed_at", *params.AuditCompletedAt)
	}
	if params.AuditError != nil {
		set("audit_error", *params.AuditError)
	}
	if params.AuditConfidence != nil {
		set("audit_confidence", *params.AuditConfidence)
	}
	if params.AuditReportID != nil {
		set("audit_report_id", *params.AuditReportID)
	}

	query += " WHERE id = $1"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPendingJobs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		models.JobStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) DeleteExpiredJobs(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Policies ---

func (s *PostgresStore) CreatePolicy(ctx context.Context, policy *models.Policy) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO policies (company_name, source_url, terms_text, raw_response, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		policy.CompanyName, policy.SourceURL, policy.TermsText, policy.RawResponse, policy.CreatedAt,
	).Scan(&policy.ID)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPolicy(ctx context.Context, id int64) (*models.Policy, error) {
	var p models.Policy
	err := s.pool.QueryRow(ctx,
		`SELECT id, company_name, source_url, terms_text, raw_response, created_at
		 FROM policies WHERE id = $1`, id,
	).Scan(&p.ID, &p.CompanyName, &p.SourceURL, &p.TermsText, &p.RawResponse, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return &p, nil
}

// --- Audit Reports ---

// CreateAuditReport inserts the report and its section scores in one
// transaction so a partially written report never becomes visible.
func (s *PostgresStore) CreateAuditReport(ctx context.Context, report *models.AuditReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin audit report tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO audit_reports (policy_id, total_score, letter_grade, overall_summary, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		report.PolicyID, report.TotalScore, report.LetterGrade, report.OverallSummary,
		report.Confidence, report.CreatedAt,
	).Scan(&report.ID)
	if err != nil {
		return fmt.Errorf("create audit report: %w", err)
	}

	for i := range report.Sections {
		sec := &report.Sections[i]
		sec.AuditReportID = report.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO section_scores (audit_report_id, section_name, score, max_score, commentary)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			sec.AuditReportID, sec.SectionName, sec.Score, sec.MaxScore, sec.Commentary,
		).Scan(&sec.ID)
		if err != nil {
			return fmt.Errorf("create section score: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit audit report tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAuditReport(ctx context.Context, id int64) (*models.AuditReport, error) {
	var r models.AuditReport
	err := s.pool.QueryRow(ctx,
		`SELECT id, policy_id, total_score, letter_grade, overall_summary, confidence, created_at
		 FROM audit_reports WHERE id = $1`, id,
	).Scan(&r.ID, &r.PolicyID, &r.TotalScore, &r.LetterGrade, &r.OverallSummary, &r.Confidence, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit report: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, audit_report_id, section_name, score, max_score, commentary
		 FROM section_scores WHERE audit_report_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list section scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sec models.SectionScore
		if err := rows.Scan(&sec.ID, &sec.AuditReportID, &sec.SectionName, &sec.Score, &sec.MaxScore, &sec.Commentary); err != nil {
			return nil, fmt.Errorf("scan section score: %w", err)
		}
		r.Sections = append(r.Sections, sec)
	}
	return &r, rows.Err()
}

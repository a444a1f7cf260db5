package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/policyglass/policyglass/internal/config"
	"github.com/policyglass/policyglass/internal/scheduler"
	"github.com/policyglass/policyglass/internal/store"
	"github.com/policyglass/policyglass/pkg/models"
)

type mockStore struct {
	jobs     map[uuid.UUID]*models.Job
	policies map[int64]*models.Policy
	reports  map[int64]*models.AuditReport

	createErr error
	created   []*models.Job
}

func newMockStore() *mockStore {
	return &mockStore{
		jobs:     make(map[uuid.UUID]*models.Job),
		policies: make(map[int64]*models.Policy),
		reports:  make(map[int64]*models.AuditReport),
	}
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

func (m *mockStore) CreateJob(_ context.Context, job *models.Job) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.jobs[job.ID] = job
	m.created = append(m.created, job)
	return nil
}

func (m *mockStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (m *mockStore) JobExists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.jobs[id]
	return ok, nil
}

func (m *mockStore) UpdateJob(_ context.Context, _ uuid.UUID, _ ...store.JobUpdateOption) error {
	return nil
}

func (m *mockStore) ListPendingJobs(_ context.Context, _ int) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *mockStore) DeleteExpiredJobs(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *mockStore) CreatePolicy(_ context.Context, _ *models.Policy) error { return nil }

func (m *mockStore) GetPolicy(_ context.Context, id int64) (*models.Policy, error) {
	p, ok := m.policies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (m *mockStore) CreateAuditReport(_ context.Context, _ *models.AuditReport) error { return nil }

func (m *mockStore) GetAuditReport(_ context.Context, id int64) (*models.AuditReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

type mockQueue struct {
	enqueued  []uuid.UUID
	removable map[uuid.UUID]bool
	stats     scheduler.Stats
}

func (q *mockQueue) Enqueue(id uuid.UUID) { q.enqueued = append(q.enqueued, id) }

func (q *mockQueue) RemoveFromQueue(id uuid.UUID) bool { return q.removable[id] }

func (q *mockQueue) Stats() scheduler.Stats { return q.stats }

type noopCache struct{}

func (noopCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (noopCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (noopCache) Delete(_ context.Context, _ string) error                         { return nil }
func (noopCache) Ping(_ context.Context) error                                     { return nil }
func (noopCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (noopCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (noopCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

func newTestService(st *mockStore, q *mockQueue) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.SchedulerConfig{JobTTL: 24 * time.Hour}
	return NewService(st, noopCache{}, q, cfg, logger)
}

func TestCreate(t *testing.T) {
	st := newMockStore()
	q := &mockQueue{}
	svc := newTestService(st, q)

	job, err := svc.Create(context.Background(), "https://example.com/terms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("expected PENDING, got %s", job.Status)
	}
	if job.ProgressPercentage != 0 {
		t.Errorf("expected progress 0, got %d", job.ProgressPercentage)
	}
	if job.ResearchStatus != models.JobStatusPending || job.AuditStatus != models.JobStatusPending {
		t.Error("phase statuses should start PENDING")
	}
	wantExpiry := job.CreatedAt.Add(24 * time.Hour)
	if !job.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expires_at = %v, want %v", job.ExpiresAt, wantExpiry)
	}
	if len(st.created) != 1 {
		t.Fatalf("expected 1 stored job, got %d", len(st.created))
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != job.ID {
		t.Errorf("job not enqueued: %v", q.enqueued)
	}
}

func TestCreate_StoreError(t *testing.T) {
	st := newMockStore()
	st.createErr = errors.New("connection refused")
	q := &mockQueue{}
	svc := newTestService(st, q)

	_, err := svc.Create(context.Background(), "https://example.com/terms")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(q.enqueued) != 0 {
		t.Error("failed create must not enqueue")
	}
}

func TestGetStatus_UnknownJobIsNilNotError(t *testing.T) {
	svc := newTestService(newMockStore(), &mockQueue{})

	view, err := svc.GetStatus(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view != nil {
		t.Errorf("expected nil view for unknown job, got %+v", view)
	}
}

func TestGetStatus_PendingJobIsReEnqueued(t *testing.T) {
	st := newMockStore()
	q := &mockQueue{}
	svc := newTestService(st, q)

	job := &models.Job{
		ID:             uuid.New(),
		Status:         models.JobStatusPending,
		ResearchStatus: models.JobStatusPending,
		AuditStatus:    models.JobStatusPending,
	}
	st.jobs[job.ID] = job

	view, err := svc.GetStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view == nil {
		t.Fatal("expected view")
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != job.ID {
		t.Errorf("pending job should be re-enqueued, got %v", q.enqueued)
	}
}

func TestGetStatus_CompletedJobIsNotEnqueued(t *testing.T) {
	st := newMockStore()
	q := &mockQueue{}
	svc := newTestService(st, q)

	job := &models.Job{
		ID:             uuid.New(),
		Status:         models.JobStatusCompleted,
		ResearchStatus: models.JobStatusCompleted,
		AuditStatus:    models.JobStatusCompleted,
	}
	st.jobs[job.ID] = job

	if _, err := svc.GetStatus(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.enqueued) != 0 {
		t.Errorf("completed job must not be enqueued, got %v", q.enqueued)
	}
}

func TestGetStatus_EmbedsPolicyAndReport(t *testing.T) {
	st := newMockStore()
	q := &mockQueue{}
	svc := newTestService(st, q)

	policyID := int64(42)
	reportID := int64(7)
	st.policies[policyID] = &models.Policy{
		ID:          policyID,
		CompanyName: "Example Corp",
		SourceURL:   "https://example.com/terms",
		TermsText:   "the full terms text",
	}
	st.reports[reportID] = &models.AuditReport{
		ID:          reportID,
		PolicyID:    policyID,
		TotalScore:  82,
		LetterGrade: "B",
		Sections: []models.SectionScore{
			{SectionName: "Data Collection & Use", Score: 12, MaxScore: 15},
		},
	}

	job := &models.Job{
		ID:            uuid.New(),
		Status:        models.JobStatusCompleted,
		PolicyID:      &policyID,
		AuditReportID: &reportID,
	}
	st.jobs[job.ID] = job

	view, err := svc.GetStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Policy == nil || view.Policy.CompanyName != "Example Corp" {
		t.Errorf("policy summary missing or wrong: %+v", view.Policy)
	}
	if view.AuditReport == nil || view.AuditReport.TotalScore != 82 {
		t.Errorf("audit report missing or wrong: %+v", view.AuditReport)
	}
	if len(view.AuditReport.Sections) != 1 {
		t.Errorf("expected report sections in view, got %d", len(view.AuditReport.Sections))
	}
}

func TestGetStatus_MissingLinkedPolicyIsTolerated(t *testing.T) {
	st := newMockStore()
	svc := newTestService(st, &mockQueue{})

	policyID := int64(999)
	job := &models.Job{
		ID:       uuid.New(),
		Status:   models.JobStatusProcessing,
		PolicyID: &policyID,
	}
	st.jobs[job.ID] = job

	view, err := svc.GetStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Policy != nil {
		t.Error("missing policy should leave the summary nil")
	}
}

func TestCancel(t *testing.T) {
	q := &mockQueue{removable: map[uuid.UUID]bool{}}
	svc := newTestService(newMockStore(), q)

	queued := uuid.New()
	q.removable[queued] = true

	if !svc.Cancel(context.Background(), queued) {
		t.Error("expected cancel of queued job to succeed")
	}
	if svc.Cancel(context.Background(), uuid.New()) {
		t.Error("expected cancel of unknown job to fail")
	}
}

func TestStats(t *testing.T) {
	q := &mockQueue{stats: scheduler.Stats{
		IsRunning:      true,
		QueueLength:    4,
		ActiveCount:    2,
		MaxConcurrency: 3,
	}}
	svc := newTestService(newMockStore(), q)

	got := svc.Stats()
	if !got.IsRunning || got.QueueLength != 4 || got.ActiveCount != 2 {
		t.Errorf("unexpected stats: %+v", got)
	}
}

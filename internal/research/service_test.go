package research

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/policyglass/policyglass/internal/ai/mock"
	"github.com/policyglass/policyglass/internal/store"
	"github.com/policyglass/policyglass/pkg/models"
)

// --- mocks ---

type mockStore struct {
	mu              sync.Mutex
	policies        map[int64]*models.Policy
	nextID          int64
	createPolicyErr error
}

func newMockStore() *mockStore {
	return &mockStore{policies: make(map[int64]*models.Policy), nextID: 1}
}

func (s *mockStore) Ping(_ context.Context) error                          { return nil }
func (s *mockStore) CreateJob(_ context.Context, _ *models.Job) error      { return nil }
func (s *mockStore) GetJob(_ context.Context, _ uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *mockStore) JobExists(_ context.Context, _ uuid.UUID) (bool, error) { return false, nil }
func (s *mockStore) UpdateJob(_ context.Context, _ uuid.UUID, _ ...store.JobUpdateOption) error {
	return nil
}
func (s *mockStore) ListPendingJobs(_ context.Context, _ int) ([]uuid.UUID, error) {
	return nil, nil
}
func (s *mockStore) DeleteExpiredJobs(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
func (s *mockStore) CreateAuditReport(_ context.Context, _ *models.AuditReport) error { return nil }
func (s *mockStore) GetAuditReport(_ context.Context, _ int64) (*models.AuditReport, error) {
	return nil, store.ErrNotFound
}

func (s *mockStore) CreatePolicy(_ context.Context, policy *models.Policy) error {
	if s.createPolicyErr != nil {
		return s.createPolicyErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	policy.ID = s.nextID
	s.nextID++
	s.policies[policy.ID] = policy
	return nil
}

func (s *mockStore) GetPolicy(_ context.Context, id int64) (*models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestRun_Success(t *testing.T) {
	st := newMockStore()
	svc := NewService(st, mock.NewMockProvider(), discardLogger())

	result, err := svc.Run(context.Background(), "https://acme.example/terms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PolicyID == 0 {
		t.Error("expected non-zero policy id")
	}
	if result.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", result.Confidence)
	}

	policy, err := st.GetPolicy(context.Background(), result.PolicyID)
	if err != nil {
		t.Fatalf("policy not stored: %v", err)
	}
	if policy.CompanyName != "Mock Corp" {
		t.Errorf("unexpected company name: %s", policy.CompanyName)
	}
	if policy.SourceURL != "https://acme.example/terms" {
		t.Errorf("unexpected source url: %s", policy.SourceURL)
	}
}

func TestRun_ProviderError(t *testing.T) {
	st := newMockStore()
	svc := NewService(st, mock.NewFailingProvider(models.ErrProviderUnavailable), discardLogger())

	_, err := svc.Run(context.Background(), "https://acme.example/terms")
	if !errors.Is(err, models.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
	if len(st.policies) != 0 {
		t.Error("no policy should be stored on provider failure")
	}
}

func TestRun_StoreError(t *testing.T) {
	st := newMockStore()
	st.createPolicyErr = errors.New("db down")
	svc := NewService(st, mock.NewMockProvider(), discardLogger())

	_, err := svc.Run(context.Background(), "https://acme.example/terms")
	if err == nil {
		t.Fatal("expected error when store fails")
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	st := newMockStore()
	svc := NewService(st, mock.NewTimeoutProvider(), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Run(ctx, "https://acme.example/terms")
	if !errors.Is(err, models.ErrInferenceTimeout) {
		t.Errorf("expected ErrInferenceTimeout, got %v", err)
	}
}

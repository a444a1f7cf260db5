package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/policyglass/policyglass/internal/jobs"
	"github.com/policyglass/policyglass/internal/scheduler"
	"github.com/policyglass/policyglass/pkg/models"
)

// --- mock JobService ---

type mockJobService struct {
	createFn func(ctx context.Context, url string) (*models.Job, error)
	statusFn func(ctx context.Context, id uuid.UUID) (*jobs.StatusView, error)
	cancelFn func(ctx context.Context, id uuid.UUID) bool
	stats    scheduler.Stats
}

func (m *mockJobService) Create(ctx context.Context, url string) (*models.Job, error) {
	return m.createFn(ctx, url)
}

func (m *mockJobService) GetStatus(ctx context.Context, id uuid.UUID) (*jobs.StatusView, error) {
	return m.statusFn(ctx, id)
}

func (m *mockJobService) Cancel(ctx context.Context, id uuid.UUID) bool {
	return m.cancelFn(ctx, id)
}

func (m *mockJobService) Stats() scheduler.Stats { return m.stats }

// --- helpers ---

func jobRoutes(svc JobService) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/jobs", NewCreateJobHandler(svc))
	r.Get("/api/v1/jobs/stats", NewJobStatsHandler(svc))
	r.Get("/api/v1/jobs/{jobID}", NewGetJobHandler(svc))
	r.Delete("/api/v1/jobs/{jobID}", NewCancelJobHandler(svc))
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error.Code
}

// --- tests ---

func TestCreateJob(t *testing.T) {
	jobID := uuid.New()
	svc := &mockJobService{
		createFn: func(_ context.Context, url string) (*models.Job, error) {
			if url != "https://example.com/terms" {
				t.Errorf("unexpected url: %s", url)
			}
			return &models.Job{ID: jobID, SourceURL: url, Status: models.JobStatusPending}, nil
		},
	}

	rec := doJSON(t, jobRoutes(svc), http.MethodPost, "/api/v1/jobs",
		map[string]string{"url": "https://example.com/terms"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data models.Job `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.ID != jobID || env.Data.Status != models.JobStatusPending {
		t.Errorf("unexpected job payload: %+v", env.Data)
	}
}

func TestCreateJob_Validation(t *testing.T) {
	svc := &mockJobService{
		createFn: func(_ context.Context, _ string) (*models.Job, error) {
			t.Fatal("service must not be called on invalid input")
			return nil, nil
		},
	}
	routes := jobRoutes(svc)

	cases := []struct {
		name string
		body any
	}{
		{"missing url", map[string]string{}},
		{"non-http scheme", map[string]string{"url": "ftp://example.com/terms"}},
		{"no host", map[string]string{"url": "https://"}},
		{"not a url", map[string]string{"url": "::::"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, routes, http.MethodPost, "/api/v1/jobs", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if code := errCode(t, rec); code != "INVALID_REQUEST" {
				t.Errorf("expected INVALID_REQUEST, got %s", code)
			}
		})
	}
}

func TestCreateJob_MalformedBody(t *testing.T) {
	svc := &mockJobService{
		createFn: func(_ context.Context, _ string) (*models.Job, error) { return nil, nil },
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	jobRoutes(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetJob(t *testing.T) {
	jobID := uuid.New()
	svc := &mockJobService{
		statusFn: func(_ context.Context, id uuid.UUID) (*jobs.StatusView, error) {
			if id != jobID {
				t.Errorf("unexpected id: %s", id)
			}
			return &jobs.StatusView{
				Job: models.Job{ID: jobID, Status: models.JobStatusProcessing, ProgressPercentage: 50},
			}, nil
		},
	}

	rec := doJSON(t, jobRoutes(svc), http.MethodGet, "/api/v1/jobs/"+jobID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data struct {
			Status             string `json:"status"`
			ProgressPercentage int    `json:"progress_percentage"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Status != models.JobStatusProcessing || env.Data.ProgressPercentage != 50 {
		t.Errorf("unexpected payload: %+v", env.Data)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	svc := &mockJobService{
		statusFn: func(_ context.Context, _ uuid.UUID) (*jobs.StatusView, error) {
			return nil, nil
		},
	}

	rec := doJSON(t, jobRoutes(svc), http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if code := errCode(t, rec); code != "JOB_NOT_FOUND" {
		t.Errorf("expected JOB_NOT_FOUND, got %s", code)
	}
}

func TestGetJob_BadID(t *testing.T) {
	svc := &mockJobService{
		statusFn: func(_ context.Context, _ uuid.UUID) (*jobs.StatusView, error) {
			t.Fatal("service must not be called with an invalid id")
			return nil, nil
		},
	}

	rec := doJSON(t, jobRoutes(svc), http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetJob_StoreFailure(t *testing.T) {
	svc := &mockJobService{
		statusFn: func(_ context.Context, _ uuid.UUID) (*jobs.StatusView, error) {
			return nil, errors.New("connection refused")
		},
	}

	rec := doJSON(t, jobRoutes(svc), http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestCancelJob_Queued(t *testing.T) {
	svc := &mockJobService{
		cancelFn: func(_ context.Context, _ uuid.UUID) bool { return true },
	}

	rec := doJSON(t, jobRoutes(svc), http.MethodDelete, "/api/v1/jobs/"+uuid.NewString(), nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestCancelJob_AlreadyDispatched(t *testing.T) {
	jobID := uuid.New()
	svc := &mockJobService{
		cancelFn: func(_ context.Context, _ uuid.UUID) bool { return false },
		statusFn: func(_ context.Context, _ uuid.UUID) (*jobs.StatusView, error) {
			return &jobs.StatusView{Job: models.Job{ID: jobID, Status: models.JobStatusProcessing}}, nil
		},
	}

	rec := doJSON(t, jobRoutes(svc), http.MethodDelete, "/api/v1/jobs/"+jobID.String(), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if code := errCode(t, rec); code != "JOB_NOT_CANCELLABLE" {
		t.Errorf("expected JOB_NOT_CANCELLABLE, got %s", code)
	}
}

func TestCancelJob_Unknown(t *testing.T) {
	svc := &mockJobService{
		cancelFn: func(_ context.Context, _ uuid.UUID) bool { return false },
		statusFn: func(_ context.Context, _ uuid.UUID) (*jobs.StatusView, error) {
			return nil, nil
		},
	}

	rec := doJSON(t, jobRoutes(svc), http.MethodDelete, "/api/v1/jobs/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestJobStats(t *testing.T) {
	svc := &mockJobService{stats: scheduler.Stats{
		IsRunning:      true,
		QueueLength:    2,
		ActiveCount:    1,
		MaxConcurrency: 3,
	}}

	rec := doJSON(t, jobRoutes(svc), http.MethodGet, "/api/v1/jobs/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var env struct {
		Data struct {
			IsRunning   bool `json:"is_running"`
			QueueLength int  `json:"queue_length"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Data.IsRunning || env.Data.QueueLength != 2 {
		t.Errorf("unexpected stats payload: %+v", env.Data)
	}
}

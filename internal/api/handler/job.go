package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/policyglass/policyglass/internal/api/response"
	"github.com/policyglass/policyglass/internal/jobs"
	"github.com/policyglass/policyglass/internal/scheduler"
	"github.com/policyglass/policyglass/pkg/models"
)

// JobService defines the job operations the handlers depend on.
type JobService interface {
	Create(ctx context.Context, sourceURL string) (*models.Job, error)
	GetStatus(ctx context.Context, jobID uuid.UUID) (*jobs.StatusView, error)
	Cancel(ctx context.Context, jobID uuid.UUID) bool
	Stats() scheduler.Stats
}

// NewCreateJobHandler returns the handler for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.URL == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "url is required", nil)
			return
		}
		parsed, err := url.Parse(req.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"url must be a valid http or https URL", nil)
			return
		}

		job, err := svc.Create(r.Context(), req.URL)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not create job", nil)
			return
		}

		response.Created(w, job)
	}
}

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := parseJobID(w, r)
		if !ok {
			return
		}

		view, err := svc.GetStatus(r.Context(), jobID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not load job", nil)
			return
		}
		if view == nil {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No such job", nil)
			return
		}

		response.JSON(w, view)
	}
}

// NewCancelJobHandler returns the handler for DELETE /api/v1/jobs/{jobID}.
// Only jobs still waiting in the queue can be cancelled.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := parseJobID(w, r)
		if !ok {
			return
		}

		if svc.Cancel(r.Context(), jobID) {
			response.Accepted(w, map[string]any{
				"job_id":    jobID,
				"cancelled": true,
			})
			return
		}

		view, err := svc.GetStatus(r.Context(), jobID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not load job", nil)
			return
		}
		if view == nil {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No such job", nil)
			return
		}
		response.Error(w, http.StatusConflict, "JOB_NOT_CANCELLABLE",
			"Job has already been dispatched or finished", nil)
	}
}

// NewJobStatsHandler returns the handler for GET /api/v1/jobs/stats.
func NewJobStatsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, svc.Stats())
	}
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "jobID")
	jobID, err := uuid.Parse(raw)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"jobID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return jobID, true
}

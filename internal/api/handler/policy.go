package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/policyglass/policyglass/internal/api/response"
	"github.com/policyglass/policyglass/internal/cache"
	"github.com/policyglass/policyglass/internal/store"
	"github.com/policyglass/policyglass/pkg/models"
)

// Reports never change once written, so cached copies only expire, never
// invalidate.
const reportCacheTTL = time.Hour

// PolicyReader defines the read operations the policy and report handlers
// depend on.
type PolicyReader interface {
	GetPolicy(ctx context.Context, id int64) (*models.Policy, error)
	GetAuditReport(ctx context.Context, id int64) (*models.AuditReport, error)
}

// NewGetPolicyHandler returns the handler for GET /api/v1/policies/{policyID}.
func NewGetPolicyHandler(st PolicyReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseInt64Param(w, r, "policyID")
		if !ok {
			return
		}

		policy, err := st.GetPolicy(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "POLICY_NOT_FOUND", "No such policy", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not load policy", nil)
			return
		}

		response.JSON(w, policy)
	}
}

// NewGetReportHandler returns the handler for GET /api/v1/reports/{reportID}.
// Reports are served read-through from the cache.
func NewGetReportHandler(st PolicyReader, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseInt64Param(w, r, "reportID")
		if !ok {
			return
		}

		key := cache.ReportKey(id)
		if data, hit, err := ca.Get(r.Context(), key); err == nil && hit {
			var report models.AuditReport
			if json.Unmarshal(data, &report) == nil {
				response.JSON(w, &report)
				return
			}
		}

		report, err := st.GetAuditReport(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "REPORT_NOT_FOUND", "No such report", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not load report", nil)
			return
		}

		if data, err := json.Marshal(report); err == nil {
			// Best effort; the store read stays the fallback.
			_ = ca.Set(r.Context(), key, data, reportCacheTTL)
		}

		response.JSON(w, report)
	}
}

func parseInt64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

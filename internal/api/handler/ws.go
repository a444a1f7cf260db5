package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/policyglass/policyglass/internal/api/response"
	"github.com/policyglass/policyglass/internal/jobs"
	"github.com/policyglass/policyglass/internal/notify"
	"github.com/policyglass/policyglass/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is origin-agnostic; auth is out of scope for this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewJobSocketHandler returns the handler for GET /api/v1/jobs/{jobID}/ws.
// The connection is subscribed to the job's updates and immediately sent a
// snapshot, so clients that connect mid-job catch up without polling.
func NewJobSocketHandler(svc JobService, hub *notify.Hub, logger *slog.Logger) http.HandlerFunc {
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

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote its own error response.
			logger.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
			return
		}

		ch := notify.NewWebsocketChannel(conn)
		hub.Subscribe(jobID, ch)
		logger.Debug("websocket subscribed", "job_id", jobID)

		if err := ch.Send(snapshotMessage(view)); err != nil {
			hub.Unsubscribe(jobID, ch)
			return
		}

		// The read loop exists only to notice the client going away; the
		// server never expects inbound frames.
		go func() {
			defer hub.Unsubscribe(jobID, ch)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					logger.Debug("websocket closed", "job_id", jobID, "error", err)
					return
				}
			}
		}()
	}
}

// snapshotMessage renders the current job state as the JOB_UPDATE a late
// subscriber would otherwise have missed.
func snapshotMessage(view *jobs.StatusView) notify.Message {
	data := notify.JobUpdateData{
		Status:             view.Status,
		ProgressPercentage: view.ProgressPercentage,
	}

	switch {
	case view.AuditStatus != models.JobStatusPending:
		data.Phase = models.PhaseAudit
		data.PhaseStatus = view.AuditStatus
		data.Confidence = view.AuditConfidence
		data.Error = view.AuditError
	default:
		data.Phase = models.PhaseResearch
		data.PhaseStatus = view.ResearchStatus
		data.Confidence = view.ResearchConfidence
		data.Error = view.ResearchError
	}

	return notify.JobUpdate(view.ID, data)
}

// Package notify fans job progress out to subscribers. The hub is transport
// agnostic: anything implementing Channel can subscribe, the bundled
// websocket adapter being the usual one.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Message types sent to subscribers.
const (
	TypeJobUpdate   = "JOB_UPDATE"
	TypePhaseUpdate = "PHASE_UPDATE"
	TypeError       = "ERROR"
	TypeComplete    = "COMPLETE"
)

// Message is the wire envelope for all notifications.
type Message struct {
	Type      string    `json:"type"`
	JobID     uuid.UUID `json:"jobId"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// JobUpdateData reports overall job status alongside the active phase.
type JobUpdateData struct {
	Status             string   `json:"status"`
	ProgressPercentage int      `json:"progressPercentage"`
	Phase              string   `json:"phase"`
	PhaseStatus        string   `json:"phaseStatus"`
	Confidence         *float64 `json:"confidence,omitempty"`
	Error              *string  `json:"error,omitempty"`
}

// PhaseUpdateData reports a single phase transition. ResultID carries the
// policy id for research and the audit report id for audit.
type PhaseUpdateData struct {
	Phase       string     `json:"phase"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Confidence  *float64   `json:"confidence,omitempty"`
	Error       *string    `json:"error,omitempty"`
	ResultID    *int64     `json:"resultId,omitempty"`
}

// ErrorData reports a failure in a phase, or "system" for pipeline-level errors.
type ErrorData struct {
	Phase   string         `json:"phase"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// CompleteData is the terminal success payload.
type CompleteData struct {
	PolicyID      int64   `json:"policyId"`
	AuditReportID int64   `json:"auditReportId"`
	FinalScore    int     `json:"finalScore"`
	LetterGrade   string  `json:"letterGrade"`
	Confidence    float64 `json:"confidence"`
}

func newMessage(msgType string, jobID uuid.UUID, data any) Message {
	return Message{
		Type:      msgType,
		JobID:     jobID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func JobUpdate(jobID uuid.UUID, data JobUpdateData) Message {
	return newMessage(TypeJobUpdate, jobID, data)
}

func PhaseUpdate(jobID uuid.UUID, data PhaseUpdateData) Message {
	return newMessage(TypePhaseUpdate, jobID, data)
}

func Error(jobID uuid.UUID, data ErrorData) Message {
	return newMessage(TypeError, jobID, data)
}

func Complete(jobID uuid.UUID, data CompleteData) Message {
	return newMessage(TypeComplete, jobID, data)
}

// Package audit implements the second phase of the policy pipeline: scoring
// previously researched terms text and persisting the audit report.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/policyglass/policyglass/internal/store"
	"github.com/policyglass/policyglass/pkg/models"
)

// Result is the output of a completed audit phase.
type Result struct {
	ReportID    int64
	TotalScore  int
	LetterGrade string
	Confidence  float64
}

// Service audits a stored policy and persists the scored report.
type Service struct {
	store    store.Store
	provider models.PolicyProvider
	logger   *slog.Logger
}

func NewService(st store.Store, provider models.PolicyProvider, logger *slog.Logger) *Service {
	return &Service{store: st, provider: provider, logger: logger}
}

// Run executes the audit phase against the policy identified by policyID.
// The total score is always recomputed from the section scores and the
// letter grade rederived from it; a provider that reports different values
// is overridden, not rejected.
func (s *Service) Run(ctx context.Context, policyID int64) (Result, error) {
	started := time.Now()

	policy, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		return Result{}, fmt.Errorf("loading policy %d: %w", policyID, err)
	}

	audit, err := s.provider.AuditPolicy(ctx, policy.TermsText)
	if err != nil {
		return Result{}, fmt.Errorf("auditing policy %d: %w", policyID, err)
	}

	total := 0
	for _, sec := range audit.Sections {
		total += sec.Score
	}
	grade := models.LetterGrade(total)
	if audit.TotalScore != total {
		s.logger.Warn("provider total score mismatch",
			"policy_id", policyID, "reported", audit.TotalScore, "calculated", total)
	}
	if audit.LetterGrade != grade {
		s.logger.Warn("provider letter grade mismatch",
			"policy_id", policyID, "reported", audit.LetterGrade, "calculated", grade)
	}

	report := &models.AuditReport{
		PolicyID:       policyID,
		TotalScore:     total,
		LetterGrade:    grade,
		OverallSummary: audit.OverallSummary,
		Confidence:     audit.Confidence,
		CreatedAt:      time.Now().UTC(),
		Sections:       audit.Sections,
	}
	if err := s.store.CreateAuditReport(ctx, report); err != nil {
		return Result{}, fmt.Errorf("storing audit report: %w", err)
	}

	s.logger.Info("audit phase completed",
		"policy_id", policyID,
		"report_id", report.ID,
		"total_score", total,
		"letter_grade", grade,
		"provider", s.provider.Name(),
		"duration_ms", time.Since(started).Milliseconds())

	return Result{
		ReportID:    report.ID,
		TotalScore:  total,
		LetterGrade: grade,
		Confidence:  audit.Confidence,
	}, nil
}

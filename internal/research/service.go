// Package research implements the first phase of the policy pipeline:
// asking the AI provider to read a policy URL and persisting the result.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/policyglass/policyglass/internal/store"
	"github.com/policyglass/policyglass/pkg/models"
)

// Result is the output of a completed research phase.
type Result struct {
	PolicyID   int64
	Confidence float64
}

// Service researches a policy URL and stores the resulting policy record.
type Service struct {
	store    store.Store
	provider models.PolicyProvider
	logger   *slog.Logger
}

func NewService(st store.Store, provider models.PolicyProvider, logger *slog.Logger) *Service {
	return &Service{store: st, provider: provider, logger: logger}
}

// Run executes the research phase for one URL. The provider call honors ctx,
// so a phase timeout upstream cancels the underlying request.
func (s *Service) Run(ctx context.Context, url string) (Result, error) {
	started := time.Now()

	research, err := s.provider.ResearchPolicy(ctx, url)
	if err != nil {
		return Result{}, fmt.Errorf("researching policy terms: %w", err)
	}

	policy := &models.Policy{
		CompanyName: research.CompanyName,
		SourceURL:   url,
		TermsText:   research.TermsText,
		RawResponse: research.RawResponse,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreatePolicy(ctx, policy); err != nil {
		return Result{}, fmt.Errorf("storing policy research: %w", err)
	}

	s.logger.Info("research phase completed",
		"policy_id", policy.ID,
		"company", policy.CompanyName,
		"provider", s.provider.Name(),
		"duration_ms", time.Since(started).Milliseconds())

	return Result{PolicyID: policy.ID, Confidence: research.Confidence}, nil
}

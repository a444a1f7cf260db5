// Package models contains shared data models used across the PolicyGlass codebase.
package models

import "context"

// PolicyProvider is the core interface that all AI integrations must implement.
// Never call specific AI providers directly; always inject this interface.
// Both operations are slow (seconds to minutes) and must honor ctx deadlines.
type PolicyProvider interface {
	// ResearchPolicy reads the policy documents behind url and returns the
	// company name plus a comprehensive description of its terms.
	ResearchPolicy(ctx context.Context, url string) (PolicyResearch, error)
	// AuditPolicy scores previously researched terms text section by section.
	AuditPolicy(ctx context.Context, termsText string) (PolicyAudit, error)
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
}

// PolicyResearch is the output of a research operation.
type PolicyResearch struct {
	CompanyName string
	TermsText   string
	RawResponse string
	Confidence  float64 // 0 when the provider reports none
}

// PolicyAudit is the structured output of an audit operation.
type PolicyAudit struct {
	Sections       []SectionScore
	TotalScore     int
	LetterGrade    string
	OverallSummary string
	Confidence     float64
}

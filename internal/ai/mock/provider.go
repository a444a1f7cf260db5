package mock

import (
	"context"

	"github.com/policyglass/policyglass/pkg/models"
)

// MockProvider satisfies models.PolicyProvider for testing.
type MockProvider struct {
	Name_        string
	ResearchFunc func(ctx context.Context, url string) (models.PolicyResearch, error)
	AuditFunc    func(ctx context.Context, termsText string) (models.PolicyAudit, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) ResearchPolicy(ctx context.Context, url string) (models.PolicyResearch, error) {
	if m.ResearchFunc != nil {
		return m.ResearchFunc(ctx, url)
	}
	return models.PolicyResearch{}, nil
}

func (m *MockProvider) AuditPolicy(ctx context.Context, termsText string) (models.PolicyAudit, error) {
	if m.AuditFunc != nil {
		return m.AuditFunc(ctx, termsText)
	}
	return models.PolicyAudit{}, nil
}

// NewMockProvider returns a MockProvider with sensible default responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		ResearchFunc: func(_ context.Context, url string) (models.PolicyResearch, error) {
			return models.PolicyResearch{
				CompanyName: "Mock Corp",
				TermsText:   "Mock terms for " + url,
				RawResponse: "Mock Corp\nMock terms for " + url,
				Confidence:  0.8,
			}, nil
		},
		AuditFunc: func(_ context.Context, _ string) (models.PolicyAudit, error) {
			sections := []models.SectionScore{
				{SectionName: "Fair Use & Access", Score: 8, MaxScore: 10, Commentary: "mock"},
				{SectionName: "Data Collection", Score: 12, MaxScore: 15, Commentary: "mock"},
				{SectionName: "Data Sharing", Score: 12, MaxScore: 15, Commentary: "mock"},
				{SectionName: "Rights & Controls", Score: 12, MaxScore: 15, Commentary: "mock"},
				{SectionName: "Liability & Security", Score: 12, MaxScore: 15, Commentary: "mock"},
				{SectionName: "Policy Changes", Score: 8, MaxScore: 10, Commentary: "mock"},
				{SectionName: "Children & Vulnerable", Score: 4, MaxScore: 5, Commentary: "mock"},
				{SectionName: "Psychological & Algorithmic", Score: 4, MaxScore: 5, Commentary: "mock"},
				{SectionName: "Content Rights", Score: 4, MaxScore: 5, Commentary: "mock"},
				{SectionName: "Jurisdiction & Enforcement", Score: 4, MaxScore: 5, Commentary: "mock"},
			}
			total := 0
			for _, s := range sections {
				total += s.Score
			}
			return models.PolicyAudit{
				Sections:       sections,
				TotalScore:     total,
				LetterGrade:    models.LetterGrade(total),
				OverallSummary: "Mock audit summary for testing",
				Confidence:     0.85,
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		ResearchFunc: func(_ context.Context, _ string) (models.PolicyResearch, error) {
			return models.PolicyResearch{}, err
		},
		AuditFunc: func(_ context.Context, _ string) (models.PolicyAudit, error) {
			return models.PolicyAudit{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		ResearchFunc: func(ctx context.Context, _ string) (models.PolicyResearch, error) {
			<-ctx.Done()
			return models.PolicyResearch{}, models.ErrInferenceTimeout
		},
		AuditFunc: func(ctx context.Context, _ string) (models.PolicyAudit, error) {
			<-ctx.Done()
			return models.PolicyAudit{}, models.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements PolicyProvider.
var _ models.PolicyProvider = (*MockProvider)(nil)

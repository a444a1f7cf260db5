// Package prompt holds the prompt templates and response parsing shared by
// all real PolicyProvider implementations. Keeping these in one place means
// every provider scores policies against the same framework.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/policyglass/policyglass/pkg/models"
)

// DefaultConfidence is assumed when a provider response omits a confidence value.
const DefaultConfidence = 0.8

// Research builds the research prompt for a policy URL. The response contract
// is plain text with the company name on the first line and the policy
// analysis on the lines after it.
func Research(url string) string {
	return fmt.Sprintf(`You are a research assistant. Read the user's topic and return a full description of the terms and policy. Give at least 1500 words. Pass the company name as well. Translate to English.

Research the policy terms for the website: %s

Please provide:
1. The company name
2. A comprehensive analysis of their terms and conditions/policy documents (at least 1500 words)
3. Any important clauses, restrictions, or user rights information

Format your response clearly with the company name at the beginning, followed by the detailed policy analysis.`, url)
}

// AuditSystem is the system prompt for the structured audit call.
const AuditSystem = `You are a professional consumer privacy and policy auditor. Your job is to evaluate user-facing terms and privacy policy text based on a predefined 10-category scoring framework (total 100 points, mapped A-E).

For each section, assign a numerical score (0 to max), provide a concise commentary noting alignment, strengths, gaps, and any misleading or missing elements. Then compute a totalScore and overallSummary, plus a letterGrade.

Scoring Guidelines:
- Fair Use & Access (10 points): Service availability, fair usage terms, accessibility
- Data Collection (15 points): Transparency, scope, necessity, user awareness
- Data Sharing (15 points): Third-party sharing, user control, transparency
- Rights & Controls (15 points): User rights, control mechanisms, data portability
- Liability & Security (15 points): Security measures, breach notification, liability terms
- Policy Changes (10 points): Change notification, user consent, grandfathering
- Children & Vulnerable (5 points): Special protections, age verification, vulnerable groups
- Psychological & Algorithmic (5 points): Algorithmic transparency, psychological manipulation
- Content Rights (5 points): User content ownership, usage rights, licensing
- Jurisdiction & Enforcement (5 points): Legal jurisdiction, dispute resolution, enforcement

Letter Grades: A (90-100), B (75-89), C (60-74), D (40-59), E (0-39)

You must output a JSON object with this exact shape and no additional keys or explanatory text:
{
  "sections": {
    "fairUse": {"score": 0, "maxScore": 10, "commentary": ""},
    "dataCollection": {"score": 0, "maxScore": 15, "commentary": ""},
    "dataSharing": {"score": 0, "maxScore": 15, "commentary": ""},
    "rightsAndControls": {"score": 0, "maxScore": 15, "commentary": ""},
    "liabilityAndSecurity": {"score": 0, "maxScore": 15, "commentary": ""},
    "policyChanges": {"score": 0, "maxScore": 10, "commentary": ""},
    "childrenVulnerable": {"score": 0, "maxScore": 5, "commentary": ""},
    "psychologicalAlgorithmic": {"score": 0, "maxScore": 5, "commentary": ""},
    "contentRights": {"score": 0, "maxScore": 5, "commentary": ""},
    "jurisdictionEnforcement": {"score": 0, "maxScore": 5, "commentary": ""}
  },
  "totalScore": 0,
  "letterGrade": "E",
  "overallSummary": "",
  "confidence": 0.0
}`

// AuditUser wraps the policy text for the audit call.
func AuditUser(termsText string) string {
	return "Here is the policy text to audit. Please begin evaluation:\n\n" + termsText
}

// ParseResearch splits a research response into company name and terms text.
// The first non-empty line is the company name (an optional "Company Name:"
// prefix is stripped); everything after it is the terms text.
func ParseResearch(raw string) (models.PolicyResearch, error) {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return models.PolicyResearch{}, fmt.Errorf("%w: empty research response", models.ErrInvalidResponse)
	}

	company := strings.TrimSpace(lines[0])
	for _, prefix := range []string{"Company Name:", "Company name:", "company name:"} {
		company = strings.TrimSpace(strings.TrimPrefix(company, prefix))
	}
	company = strings.Trim(company, "*# ")

	terms := strings.TrimSpace(strings.Join(lines[1:], "\n"))
	if terms == "" {
		return models.PolicyResearch{}, fmt.Errorf("%w: research response missing terms text", models.ErrInvalidResponse)
	}

	return models.PolicyResearch{
		CompanyName: company,
		TermsText:   terms,
		RawResponse: raw,
		Confidence:  DefaultConfidence,
	}, nil
}

type auditSection struct {
	Score      int    `json:"score"`
	MaxScore   int    `json:"maxScore"`
	Commentary string `json:"commentary"`
}

type auditSections struct {
	FairUse                  auditSection `json:"fairUse"`
	DataCollection           auditSection `json:"dataCollection"`
	DataSharing              auditSection `json:"dataSharing"`
	RightsAndControls        auditSection `json:"rightsAndControls"`
	LiabilityAndSecurity     auditSection `json:"liabilityAndSecurity"`
	PolicyChanges            auditSection `json:"policyChanges"`
	ChildrenVulnerable       auditSection `json:"childrenVulnerable"`
	PsychologicalAlgorithmic auditSection `json:"psychologicalAlgorithmic"`
	ContentRights            auditSection `json:"contentRights"`
	JurisdictionEnforcement  auditSection `json:"jurisdictionEnforcement"`
}

type auditPayload struct {
	Sections       auditSections `json:"sections"`
	TotalScore     int           `json:"totalScore"`
	LetterGrade    string        `json:"letterGrade"`
	OverallSummary string        `json:"overallSummary"`
	Confidence     *float64      `json:"confidence"`
}

// ParseAudit decodes a structured audit response. The total and letter grade
// are recomputed from the section scores; a provider that reports different
// values is overridden rather than rejected.
func ParseAudit(raw string) (models.PolicyAudit, error) {
	cleaned := stripCodeFence(raw)

	var payload auditPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return models.PolicyAudit{}, fmt.Errorf("%w: decoding audit response: %v", models.ErrInvalidResponse, err)
	}

	sections := []struct {
		name string
		max  int
		sec  auditSection
	}{
		{"Fair Use & Access", 10, payload.Sections.FairUse},
		{"Data Collection", 15, payload.Sections.DataCollection},
		{"Data Sharing", 15, payload.Sections.DataSharing},
		{"Rights & Controls", 15, payload.Sections.RightsAndControls},
		{"Liability & Security", 15, payload.Sections.LiabilityAndSecurity},
		{"Policy Changes", 10, payload.Sections.PolicyChanges},
		{"Children & Vulnerable", 5, payload.Sections.ChildrenVulnerable},
		{"Psychological & Algorithmic", 5, payload.Sections.PsychologicalAlgorithmic},
		{"Content Rights", 5, payload.Sections.ContentRights},
		{"Jurisdiction & Enforcement", 5, payload.Sections.JurisdictionEnforcement},
	}

	audit := models.PolicyAudit{OverallSummary: payload.OverallSummary}
	total := 0
	for _, s := range sections {
		score := s.sec.Score
		if score < 0 {
			return models.PolicyAudit{}, fmt.Errorf("%w: section %q score %d below zero", models.ErrInvalidResponse, s.name, score)
		}
		if score > s.max {
			return models.PolicyAudit{}, fmt.Errorf("%w: section %q score %d exceeds max %d", models.ErrInvalidResponse, s.name, score, s.max)
		}
		total += score
		audit.Sections = append(audit.Sections, models.SectionScore{
			SectionName: s.name,
			Score:       score,
			MaxScore:    s.max,
			Commentary:  s.sec.Commentary,
		})
	}

	audit.TotalScore = total
	audit.LetterGrade = models.LetterGrade(total)
	audit.Confidence = DefaultConfidence
	if payload.Confidence != nil && *payload.Confidence >= 0 && *payload.Confidence <= 1 {
		audit.Confidence = *payload.Confidence
	}

	return audit, nil
}

// stripCodeFence removes a surrounding markdown code fence if present.
// Some models wrap JSON output in ```json blocks despite instructions.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

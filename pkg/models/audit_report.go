package models

import "time"

// AuditReport is the scored consumer-protection audit of a researched policy.
type AuditReport struct {
	ID             int64     `db:"id"              json:"id"`
	PolicyID       int64     `db:"policy_id"       json:"policy_id"`
	TotalScore     int       `db:"total_score"     json:"total_score"`
	LetterGrade    string    `db:"letter_grade"    json:"letter_grade"`
	OverallSummary string    `db:"overall_summary" json:"overall_summary"`
	Confidence     float64   `db:"confidence"      json:"confidence"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`

	Sections []SectionScore `db:"-" json:"sections,omitempty"`
}

// SectionScore is one scored section of an audit report.
type SectionScore struct {
	ID            int64  `db:"id"              json:"id"`
	AuditReportID int64  `db:"audit_report_id" json:"-"`
	SectionName   string `db:"section_name"    json:"section_name"`
	Score         int    `db:"score"           json:"score"`
	MaxScore      int    `db:"max_score"       json:"max_score"`
	Commentary    string `db:"commentary"      json:"commentary"`
}

// LetterGrade maps a total score (0-100) onto the A-E grading scale.
func LetterGrade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 75:
		return "B"
	case score >= 60:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "E"
	}
}

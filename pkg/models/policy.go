package models

import "time"

// Policy holds the researched terms of a single policy document.
// One row is created per successful research phase.
type Policy struct {
	ID          int64     `db:"id"           json:"id"`
	CompanyName string    `db:"company_name" json:"company_name"`
	SourceURL   string    `db:"source_url"   json:"source_url"`
	TermsText   string    `db:"terms_text"   json:"terms_text"`
	RawResponse string    `db:"raw_response" json:"-"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}

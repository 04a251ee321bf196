package models

import "time"

// Artifact is a versioned binary document. Header and body carry independent
// version counters so small header edits don't contend with body uploads.
type Artifact struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	Header        []byte    `json:"header"`
	HeaderVersion int64     `json:"header_version"`
	Body          []byte    `json:"body"`
	BodyVersion   int64     `json:"body_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

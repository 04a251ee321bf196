package models

import "time"

type Session struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	Tag               string    `json:"tag"`
	Metadata          string    `json:"metadata"`
	MetadataVersion   int64     `json:"metadata_version"`
	AgentState        *string   `json:"agent_state,omitempty"`
	AgentStateVersion int64     `json:"agent_state_version"`
	Active            bool      `json:"active"`
	ActiveAt          int64     `json:"active_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

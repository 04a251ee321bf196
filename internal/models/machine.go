package models

import "time"

type Machine struct {
	ID                 string    `json:"id"`
	AccountID          string    `json:"account_id"`
	Metadata           string    `json:"metadata"`
	MetadataVersion    int64     `json:"metadata_version"`
	DaemonState        *string   `json:"daemon_state,omitempty"`
	DaemonStateVersion int64     `json:"daemon_state_version"`
	Active             bool      `json:"active"`
	ActiveAt           int64     `json:"active_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

package models

import "time"

// Share grants a recipient account read access to another account's session.
type Share struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	OwnerID     string    `json:"owner_id"`
	RecipientID string    `json:"recipient_id"`
	CreatedAt   time.Time `json:"created_at"`
}

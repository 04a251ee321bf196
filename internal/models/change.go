package models

import (
	"encoding/json"
	"time"
)

// ChangeKind identifies which entity class a change record refers to.
type ChangeKind string

const (
	KindAccount  ChangeKind = "account"
	KindSession  ChangeKind = "session"
	KindMachine  ChangeKind = "machine"
	KindArtifact ChangeKind = "artifact"
	KindShare    ChangeKind = "share"
)

func (k ChangeKind) Valid() bool {
	switch k {
	case KindAccount, KindSession, KindMachine, KindArtifact, KindShare:
		return true
	}
	return false
}

// ChangeRecord is one row of the per-account change log. Cursor is strictly
// increasing per account and is allocated inside the same transaction as the
// mutation it describes.
type ChangeRecord struct {
	Cursor    int64           `json:"cursor"`
	AccountID string          `json:"account_id"`
	Kind      ChangeKind      `json:"kind"`
	EntityID  string          `json:"entity_id"`
	ChangedAt time.Time       `json:"changed_at"`
	Hint      json.RawMessage `json:"hint,omitempty"`
}

// AccountCursor is the per-account cursor state. Seq only increases;
// ChangesFloor only increases and never exceeds Seq. Records at or below the
// floor are pruned; a client cursor strictly below the floor would need pruned
// records and is answered with "gone".
type AccountCursor struct {
	AccountID    string `json:"account_id"`
	Seq          int64  `json:"cursor"`
	ChangesFloor int64  `json:"changes_floor"`
}

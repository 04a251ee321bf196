package models

// PresenceKind distinguishes the two entity classes that report liveness.
type PresenceKind string

const (
	PresenceSession PresenceKind = "session"
	PresenceMachine PresenceKind = "machine"
)

// StreamEntry is the wire format of one liveness event on the durable queue.
// AccountID may be empty for session entries whose owner is unknown at publish
// time; consumers resolve it from storage.
type StreamEntry struct {
	Kind      PresenceKind `json:"kind"`
	EntityID  string       `json:"id"`
	Timestamp int64        `json:"ts"`
	AccountID string       `json:"account_id"`
}

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Update body discriminants. The wire form of a body is
// {"t": <discriminant>, "data": {...}}.
const (
	UpdateSessionUpdated  = "session-updated"
	UpdateMachineUpdated  = "machine-updated"
	UpdateArtifactUpdated = "artifact-updated"
	UpdateAccountUpdated  = "account-updated"
	UpdateShareCreated    = "share-created"
	UpdateShareRevoked    = "share-revoked"
)

// UpdateBody is a closed set of update payload variants. Consumers switch on
// the concrete type; adding a variant forces every switch to decide.
type UpdateBody interface {
	updateBody()
	UpdateType() string
}

// VersionedValue carries a value together with the version the CAS write
// produced, so clients can rebase without a round trip.
type VersionedValue struct {
	Value   string `json:"value"`
	Version int64  `json:"version"`
}

type VersionedBytes struct {
	Value   []byte `json:"value"`
	Version int64  `json:"version"`
}

type SessionUpdatedBody struct {
	SessionID  string          `json:"session_id"`
	Metadata   *VersionedValue `json:"metadata,omitempty"`
	AgentState *VersionedValue `json:"agent_state,omitempty"`
}

type MachineUpdatedBody struct {
	MachineID   string          `json:"machine_id"`
	Metadata    *VersionedValue `json:"metadata,omitempty"`
	DaemonState *VersionedValue `json:"daemon_state,omitempty"`
}

type ArtifactUpdatedBody struct {
	ArtifactID string          `json:"artifact_id"`
	Header     *VersionedBytes `json:"header,omitempty"`
	Body       *VersionedBytes `json:"body,omitempty"`
}

type AccountUpdatedBody struct {
	AccountID string          `json:"account_id"`
	Settings  *VersionedValue `json:"settings,omitempty"`
}

type ShareCreatedBody struct {
	ShareID   string `json:"share_id"`
	SessionID string `json:"session_id"`
	OwnerID   string `json:"owner_id"`
}

type ShareRevokedBody struct {
	ShareID   string `json:"share_id"`
	SessionID string `json:"session_id"`
}

func (SessionUpdatedBody) updateBody()  {}
func (MachineUpdatedBody) updateBody()  {}
func (ArtifactUpdatedBody) updateBody() {}
func (AccountUpdatedBody) updateBody()  {}
func (ShareCreatedBody) updateBody()    {}
func (ShareRevokedBody) updateBody()    {}

func (SessionUpdatedBody) UpdateType() string  { return UpdateSessionUpdated }
func (MachineUpdatedBody) UpdateType() string  { return UpdateMachineUpdated }
func (ArtifactUpdatedBody) UpdateType() string { return UpdateArtifactUpdated }
func (AccountUpdatedBody) UpdateType() string  { return UpdateAccountUpdated }
func (ShareCreatedBody) UpdateType() string    { return UpdateShareCreated }
func (ShareRevokedBody) UpdateType() string    { return UpdateShareRevoked }

// UpdateContainer is the unit of socket fanout. Seq must be the exact cursor
// the ledger allocated for the recipient this container is addressed to;
// clients use it for ordering and duplicate detection.
type UpdateContainer struct {
	ID        string     `json:"id"`
	Seq       int64      `json:"seq"`
	CreatedAt int64      `json:"created_at"`
	Body      UpdateBody `json:"body"`
}

// NewUpdateContainer stamps a fresh idempotency id and the current time.
func NewUpdateContainer(seq int64, body UpdateBody) *UpdateContainer {
	return &UpdateContainer{
		ID:        uuid.NewString(),
		Seq:       seq,
		CreatedAt: time.Now().UnixMilli(),
		Body:      body,
	}
}

type bodyEnvelope struct {
	T    string          `json:"t"`
	Data json.RawMessage `json:"data"`
}

func (c *UpdateContainer) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(c.Body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ID        string       `json:"id"`
		Seq       int64        `json:"seq"`
		CreatedAt int64        `json:"created_at"`
		Body      bodyEnvelope `json:"body"`
	}{c.ID, c.Seq, c.CreatedAt, bodyEnvelope{T: c.Body.UpdateType(), Data: data}})
}

func (c *UpdateContainer) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string       `json:"id"`
		Seq       int64        `json:"seq"`
		CreatedAt int64        `json:"created_at"`
		Body      bodyEnvelope `json:"body"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	body, err := unmarshalUpdateBody(raw.Body)
	if err != nil {
		return err
	}
	c.ID, c.Seq, c.CreatedAt, c.Body = raw.ID, raw.Seq, raw.CreatedAt, body
	return nil
}

func unmarshalUpdateBody(env bodyEnvelope) (UpdateBody, error) {
	var body UpdateBody
	switch env.T {
	case UpdateSessionUpdated:
		body = &SessionUpdatedBody{}
	case UpdateMachineUpdated:
		body = &MachineUpdatedBody{}
	case UpdateArtifactUpdated:
		body = &ArtifactUpdatedBody{}
	case UpdateAccountUpdated:
		body = &AccountUpdatedBody{}
	case UpdateShareCreated:
		body = &ShareCreatedBody{}
	case UpdateShareRevoked:
		body = &ShareRevokedBody{}
	default:
		return nil, fmt.Errorf("unknown update type %q", env.T)
	}
	if err := json.Unmarshal(env.Data, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Ephemeral payloads are liveness notifications that never carry a cursor and
// are safe for session-wide broadcast.
const (
	EphemeralSessionActivity = "session-activity"
	EphemeralMachineActivity = "machine-activity"
)

type EphemeralPayload struct {
	Type     string `json:"t"`
	ID       string `json:"id"`
	Active   bool   `json:"active"`
	ActiveAt int64  `json:"active_at"`
}

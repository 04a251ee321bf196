package services

import (
	"errors"

	"github.com/happier-dev/happier-sub002/internal/models"
	"github.com/happier-dev/happier-sub002/internal/realtime"
)

// ErrNotFound is returned by read operations when the entity does not exist
// or is not visible to the caller.
var ErrNotFound = errors.New("not found")

// WriteStatus is the tagged outcome of every mutating operation. Route
// handlers translate these into transport status codes; the services are
// transport-agnostic.
type WriteStatus int

const (
	StatusOK WriteStatus = iota
	// StatusVersionMismatch is expected and user-correctable: the caller
	// rebases on the returned current state and retries. Never an error log.
	StatusVersionMismatch
	StatusNotFound
	// StatusConflict means an id collision across owners. Permanent.
	StatusConflict
	StatusInvalidParams
	StatusInternal
)

func (s WriteStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusVersionMismatch:
		return "version-mismatch"
	case StatusNotFound:
		return "not-found"
	case StatusConflict:
		return "conflict"
	case StatusInvalidParams:
		return "invalid-params"
	case StatusInternal:
		return "internal"
	}
	return "unknown"
}

// ValueResult reports a CAS write on a string-valued field. On OK it carries
// the new version and the owner's ledger cursor; on VersionMismatch it
// carries the authoritative current value and version for client rebase.
type ValueResult struct {
	Status  WriteStatus
	Version int64
	Value   string
	Cursor  int64
}

// BytesResult is ValueResult for binary fields.
type BytesResult struct {
	Status  WriteStatus
	Version int64
	Value   []byte
	Cursor  int64
}

// CreateResult reports an idempotent create. DidWrite is false when the
// entity already existed under the same owner; no ledger call happened then.
type CreateResult struct {
	Status   WriteStatus
	DidWrite bool
	Cursor   int64
}

// UpdateEmitter is the post-commit fanout seam, satisfied by
// realtime.Router. Tests substitute a recorder.
type UpdateEmitter interface {
	EmitUpdate(filter realtime.RecipientFilter, update *models.UpdateContainer)
}

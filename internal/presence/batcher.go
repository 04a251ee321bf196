package presence

import (
	"sync"

	"github.com/happier-dev/happier-sub002/internal/models"
)

// Key identifies one entity in the coalescing map.
type Key struct {
	Kind models.PresenceKind
	ID   string
}

// Pending is the coalesced liveness observation for one entity: the maximum
// timestamp seen since the entry was last committed.
type Pending struct {
	Timestamp int64
	AccountID string
}

// Batcher coalesces high-frequency liveness pings to at most one pending
// write per entity. Pure in-memory, no I/O; max-timestamp coalescing makes it
// idempotent under replays and out-of-order delivery.
type Batcher struct {
	mu      sync.Mutex
	entries map[Key]Pending
}

func NewBatcher() *Batcher {
	return &Batcher{entries: make(map[Key]Pending)}
}

func (b *Batcher) RecordSessionAlive(id string, ts int64) {
	b.record(Key{Kind: models.PresenceSession, ID: id}, Pending{Timestamp: ts})
}

func (b *Batcher) RecordMachineAlive(accountID, id string, ts int64) {
	b.record(Key{Kind: models.PresenceMachine, ID: id}, Pending{Timestamp: ts, AccountID: accountID})
}

func (b *Batcher) record(k Key, p Pending) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.entries[k]
	if ok && cur.Timestamp >= p.Timestamp {
		return
	}
	if ok && p.AccountID == "" {
		p.AccountID = cur.AccountID
	}
	b.entries[k] = p
}

// Snapshot returns a shallow copy without clearing state, for the
// at-least-once flush protocol: flush the snapshot, then Commit it.
func (b *Batcher) Snapshot() map[Key]Pending {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Key]Pending, len(b.entries))
	for k, p := range b.entries {
		out[k] = p
	}
	return out
}

// Commit removes entries whose stored timestamp is not newer than the
// snapshot's value for that key. Entries updated after the snapshot was taken
// survive, so an in-flight flush can never erase a fresher observation.
func (b *Batcher) Commit(snapshot map[Key]Pending) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, snap := range snapshot {
		if cur, ok := b.entries[k]; ok && cur.Timestamp <= snap.Timestamp {
			delete(b.entries, k)
		}
	}
}

// Drain returns all pending entries and clears the map. Used by the simple
// single-process flush path.
func (b *Batcher) Drain() map[Key]Pending {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = make(map[Key]Pending)
	return out
}

func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

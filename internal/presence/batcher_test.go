package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happier-dev/happier-sub002/internal/models"
)

// TestBatcher_MaxWins verifies out-of-order pings coalesce to the max.
func TestBatcher_MaxWins(t *testing.T) {
	b := NewBatcher()

	b.RecordSessionAlive("s1", 10)
	b.RecordSessionAlive("s1", 5)
	b.RecordSessionAlive("s1", 11)

	batch := b.Drain()
	require.Len(t, batch, 1)
	assert.Equal(t, int64(11), batch[Key{Kind: models.PresenceSession, ID: "s1"}].Timestamp)
}

// TestBatcher_CommitPreservesNewerUpdate is the lost-update protection:
// record 10 -> snapshot -> record 11 -> commit(snapshot) must keep 11.
func TestBatcher_CommitPreservesNewerUpdate(t *testing.T) {
	b := NewBatcher()
	key := Key{Kind: models.PresenceSession, ID: "s1"}

	b.RecordSessionAlive("s1", 10)
	snap := b.Snapshot()
	b.RecordSessionAlive("s1", 11)

	b.Commit(snap)

	batch := b.Drain()
	require.Len(t, batch, 1)
	assert.Equal(t, int64(11), batch[key].Timestamp)
}

func TestBatcher_CommitRemovesFlushedEntries(t *testing.T) {
	b := NewBatcher()

	b.RecordSessionAlive("s1", 10)
	b.RecordMachineAlive("acct", "m1", 20)

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "acct", snap[Key{Kind: models.PresenceMachine, ID: "m1"}].AccountID)

	b.Commit(snap)
	assert.Equal(t, 0, b.Len())
}

func TestBatcher_SnapshotDoesNotClear(t *testing.T) {
	b := NewBatcher()
	b.RecordSessionAlive("s1", 10)

	_ = b.Snapshot()
	assert.Equal(t, 1, b.Len())
}

func TestBatcher_DrainClears(t *testing.T) {
	b := NewBatcher()
	b.RecordSessionAlive("s1", 10)

	batch := b.Drain()
	require.Len(t, batch, 1)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Drain())
}

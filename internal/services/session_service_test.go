package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happier-dev/happier-sub002/internal/models"
	"github.com/happier-dev/happier-sub002/internal/realtime"
)

func TestSessionService_CreateIdempotent(t *testing.T) {
	pool := getTestPool(t)
	rec := &recorder{}
	svc := NewSessionService(pool, newTestLedger(pool), rec)
	ctx := context.Background()

	owner := uuid.NewString()
	sessionID := uuid.NewString()

	// ACT: first create writes and allocates a cursor.
	res, err := svc.Create(ctx, owner, sessionID, "cli", `{"name":"dev"}`)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.True(t, res.DidWrite)
	assert.Equal(t, int64(1), res.Cursor)
	assert.Len(t, rec.all(), 1)

	// Re-create under the same owner: no-op success, no second cursor, no
	// duplicate fanout.
	rec.reset()
	res, err = svc.Create(ctx, owner, sessionID, "cli", `{"name":"dev"}`)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.False(t, res.DidWrite)
	assert.Zero(t, res.Cursor)
	assert.Empty(t, rec.all())

	// Same id under a different owner: hard conflict.
	res, err = svc.Create(ctx, uuid.NewString(), sessionID, "cli", "{}")
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, res.Status)
}

func TestSessionService_UpdateMetadataCAS(t *testing.T) {
	pool := getTestPool(t)
	rec := &recorder{}
	svc := NewSessionService(pool, newTestLedger(pool), rec)
	ctx := context.Background()

	owner := uuid.NewString()
	sessionID := uuid.NewString()
	_, err := svc.Create(ctx, owner, sessionID, "cli", "v0")
	require.NoError(t, err)

	// Matching expected version succeeds and bumps to 2.
	res, err := svc.UpdateMetadata(ctx, owner, sessionID, 1, "v1")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, "v1", res.Value)

	// The same stale expected version now fails with the authoritative
	// current state so the caller can rebase.
	res, err = svc.UpdateMetadata(ctx, owner, sessionID, 1, "v1-again")
	require.NoError(t, err)
	assert.Equal(t, StatusVersionMismatch, res.Status)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, "v1", res.Value)
}

func TestSessionService_UpdateUnknownSession(t *testing.T) {
	pool := getTestPool(t)
	svc := NewSessionService(pool, newTestLedger(pool), &recorder{})

	res, err := svc.UpdateMetadata(context.Background(), uuid.NewString(), uuid.NewString(), 1, "x")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestSessionService_OwnershipEnforced(t *testing.T) {
	pool := getTestPool(t)
	svc := NewSessionService(pool, newTestLedger(pool), &recorder{})
	ctx := context.Background()

	owner := uuid.NewString()
	sessionID := uuid.NewString()
	_, err := svc.Create(ctx, owner, sessionID, "", "")
	require.NoError(t, err)

	res, err := svc.UpdateMetadata(ctx, uuid.NewString(), sessionID, 1, "hijack")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestSessionService_GetAndList(t *testing.T) {
	pool := getTestPool(t)
	l := newTestLedger(pool)
	sessions := NewSessionService(pool, l, &recorder{})
	shares := NewShareService(pool, l, &recorder{})
	ctx := context.Background()

	owner := uuid.NewString()
	recipient := uuid.NewString()
	sessionID := uuid.NewString()
	_, err := sessions.Create(ctx, owner, sessionID, "cli", "m0")
	require.NoError(t, err)

	// Owner sees the full record.
	sess, err := sessions.Get(ctx, owner, sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, sess.ID)
	assert.Equal(t, "cli", sess.Tag)
	assert.Equal(t, int64(1), sess.MetadataVersion)

	// A stranger does not.
	_, err = sessions.Get(ctx, recipient, sessionID)
	assert.ErrorIs(t, err, ErrNotFound)

	// A share makes the session visible to the recipient, in Get and List.
	shareRes, err := shares.Create(ctx, owner, sessionID, recipient)
	require.NoError(t, err)
	require.Equal(t, StatusOK, shareRes.Status)

	sess, err = sessions.Get(ctx, recipient, sessionID)
	require.NoError(t, err)
	assert.Equal(t, owner, sess.AccountID)

	listed, err := sessions.List(ctx, recipient)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, sessionID, listed[0].ID)
}

// TestSessionService_SharedSessionFanout: a metadata update on a shared
// session emits one independently cursor-stamped container per account,
// each addressed user-scoped so no recipient sees another's cursor.
func TestSessionService_SharedSessionFanout(t *testing.T) {
	pool := getTestPool(t)
	rec := &recorder{}
	l := newTestLedger(pool)
	sessions := NewSessionService(pool, l, rec)
	shares := NewShareService(pool, l, rec)
	ctx := context.Background()

	owner := uuid.NewString()
	recipient := uuid.NewString()
	sessionID := uuid.NewString()

	_, err := sessions.Create(ctx, owner, sessionID, "", "v0")
	require.NoError(t, err)
	shareRes, err := shares.Create(ctx, owner, sessionID, recipient)
	require.NoError(t, err)
	require.Equal(t, StatusOK, shareRes.Status)
	require.True(t, shareRes.DidWrite)

	rec.reset()
	res, err := sessions.UpdateMetadata(ctx, owner, sessionID, 1, "v1")
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)

	emissions := rec.all()
	require.Len(t, emissions, 2)

	byFilter := map[realtime.RecipientFilter]*models.UpdateContainer{}
	for _, e := range emissions {
		byFilter[e.Filter] = e.Update
	}

	ownerUpdate := byFilter[realtime.UserScoped(owner)]
	recipientUpdate := byFilter[realtime.UserScoped(recipient)]
	require.NotNil(t, ownerUpdate)
	require.NotNil(t, recipientUpdate)

	// Owner: create=1, share=2, update=3. Recipient: share=1, update=2.
	assert.Equal(t, int64(3), ownerUpdate.Seq)
	assert.Equal(t, int64(2), recipientUpdate.Seq)
	assert.NotEqual(t, ownerUpdate.Seq, recipientUpdate.Seq)
	assert.Equal(t, res.Cursor, ownerUpdate.Seq, "result cursor is the owner's")
}

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

func TestShareService_CreateAndRevoke(t *testing.T) {
	pool := getTestPool(t)
	rec := &recorder{}
	l := newTestLedger(pool)
	sessions := NewSessionService(pool, l, rec)
	shares := NewShareService(pool, l, rec)
	ctx := context.Background()

	owner := uuid.NewString()
	recipient := uuid.NewString()
	sessionID := uuid.NewString()
	_, err := sessions.Create(ctx, owner, sessionID, "", "")
	require.NoError(t, err)

	rec.reset()
	res, err := shares.Create(ctx, owner, sessionID, recipient)
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.True(t, res.DidWrite)

	// One emission per account, each with its own cursor.
	emissions := rec.all()
	require.Len(t, emissions, 2)
	seqs := map[realtime.RecipientFilter]int64{}
	var shareID string
	for _, e := range emissions {
		seqs[e.Filter] = e.Update.Seq
		body, ok := e.Update.Body.(*models.ShareCreatedBody)
		require.True(t, ok)
		assert.Equal(t, sessionID, body.SessionID)
		shareID = body.ShareID
	}
	assert.Equal(t, int64(2), seqs[realtime.UserScoped(owner)], "owner: create=1, share=2")
	assert.Equal(t, int64(1), seqs[realtime.UserScoped(recipient)])

	// Granting again is a no-op, no new cursors.
	rec.reset()
	res, err = shares.Create(ctx, owner, sessionID, recipient)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.False(t, res.DidWrite)
	assert.Empty(t, rec.all())

	// Revoke fans out to both accounts as well.
	rec.reset()
	res, err = shares.Revoke(ctx, owner, shareID)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	require.Len(t, rec.all(), 2)
	for _, e := range rec.all() {
		_, ok := e.Update.Body.(*models.ShareRevokedBody)
		assert.True(t, ok)
	}
}

func TestShareService_List(t *testing.T) {
	pool := getTestPool(t)
	l := newTestLedger(pool)
	sessions := NewSessionService(pool, l, &recorder{})
	shares := NewShareService(pool, l, &recorder{})
	ctx := context.Background()

	owner := uuid.NewString()
	recipient := uuid.NewString()
	sessionID := uuid.NewString()
	_, err := sessions.Create(ctx, owner, sessionID, "", "")
	require.NoError(t, err)
	_, err = shares.Create(ctx, owner, sessionID, recipient)
	require.NoError(t, err)

	// Both sides of the grant see it; an uninvolved account sees nothing.
	for _, acct := range []string{owner, recipient} {
		listed, err := shares.List(ctx, acct)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, sessionID, listed[0].SessionID)
		assert.Equal(t, owner, listed[0].OwnerID)
		assert.Equal(t, recipient, listed[0].RecipientID)
	}

	listed, err := shares.List(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestShareService_Validation(t *testing.T) {
	pool := getTestPool(t)
	l := newTestLedger(pool)
	sessions := NewSessionService(pool, l, &recorder{})
	shares := NewShareService(pool, l, &recorder{})
	ctx := context.Background()

	owner := uuid.NewString()
	sessionID := uuid.NewString()
	_, err := sessions.Create(ctx, owner, sessionID, "", "")
	require.NoError(t, err)

	// Sharing with yourself is invalid.
	res, err := shares.Create(ctx, owner, sessionID, owner)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidParams, res.Status)

	// Unknown session.
	res, err = shares.Create(ctx, owner, uuid.NewString(), uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)

	// Only the owner can share.
	res, err = shares.Create(ctx, uuid.NewString(), sessionID, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)

	// Revoking an unknown share.
	res, err = shares.Revoke(ctx, owner, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)
}

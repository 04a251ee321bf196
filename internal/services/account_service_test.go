package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Account rows are provisioned by the auth collaborator; tests seed them
// directly.
func seedAccount(t *testing.T, pool *pgxpool.Pool, accountID string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO accounts (id) VALUES ($1)`, accountID)
	require.NoError(t, err)
}

func TestAccountService_SettingsCAS(t *testing.T) {
	pool := getTestPool(t)
	rec := &recorder{}
	svc := NewAccountService(pool, newTestLedger(pool), rec)
	ctx := context.Background()

	accountID := uuid.NewString()
	seedAccount(t, pool, accountID)

	res, err := svc.UpdateSettings(ctx, accountID, 1, `{"theme":"dark"}`)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(2), res.Version)
	assert.Len(t, rec.all(), 1)

	// Stale version: authoritative state returned for rebase.
	res, err = svc.UpdateSettings(ctx, accountID, 1, `{"theme":"light"}`)
	require.NoError(t, err)
	assert.Equal(t, StatusVersionMismatch, res.Status)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, `{"theme":"dark"}`, res.Value)
}

func TestAccountService_Get(t *testing.T) {
	pool := getTestPool(t)
	svc := NewAccountService(pool, newTestLedger(pool), &recorder{})
	ctx := context.Background()

	accountID := uuid.NewString()
	seedAccount(t, pool, accountID)
	_, err := svc.UpdateSettings(ctx, accountID, 1, "cfg")
	require.NoError(t, err)

	a, err := svc.Get(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, accountID, a.ID)
	assert.Equal(t, "cfg", a.Settings)
	assert.Equal(t, int64(2), a.SettingsVersion)

	_, err = svc.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineService_GetAndList(t *testing.T) {
	pool := getTestPool(t)
	svc := NewMachineService(pool, newTestLedger(pool), &recorder{})
	ctx := context.Background()

	owner := uuid.NewString()
	machineID := uuid.NewString()
	res, err := svc.Create(ctx, owner, machineID, "laptop")
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)

	m, err := svc.Get(ctx, owner, machineID)
	require.NoError(t, err)
	assert.Equal(t, machineID, m.ID)
	assert.Equal(t, "laptop", m.Metadata)
	assert.Equal(t, int64(1), m.MetadataVersion)

	// Machines are owner-only.
	_, err = svc.Get(ctx, uuid.NewString(), machineID)
	assert.ErrorIs(t, err, ErrNotFound)

	listed, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, machineID, listed[0].ID)

	listed, err = svc.List(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestMachineService_UpdateDaemonStateCAS(t *testing.T) {
	pool := getTestPool(t)
	svc := NewMachineService(pool, newTestLedger(pool), &recorder{})
	ctx := context.Background()

	owner := uuid.NewString()
	machineID := uuid.NewString()
	_, err := svc.Create(ctx, owner, machineID, "")
	require.NoError(t, err)

	res, err := svc.UpdateDaemonState(ctx, owner, machineID, 1, "running")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(2), res.Version)

	res, err = svc.UpdateDaemonState(ctx, owner, machineID, 1, "stale")
	require.NoError(t, err)
	assert.Equal(t, StatusVersionMismatch, res.Status)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, "running", res.Value)
}

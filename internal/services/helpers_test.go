package services

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/happier-dev/happier-sub002/internal/database"
	"github.com/happier-dev/happier-sub002/internal/ledger"
	"github.com/happier-dev/happier-sub002/internal/models"
	"github.com/happier-dev/happier-sub002/internal/realtime"
)

func getTestPool(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, database.EnsureSchema(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

type emittedUpdate struct {
	Filter realtime.RecipientFilter
	Update *models.UpdateContainer
}

// recorder captures post-commit emissions for assertions.
type recorder struct {
	mu      sync.Mutex
	updates []emittedUpdate
}

func (r *recorder) EmitUpdate(filter realtime.RecipientFilter, update *models.UpdateContainer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, emittedUpdate{Filter: filter, Update: update})
}

func (r *recorder) all() []emittedUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]emittedUpdate, len(r.updates))
	copy(out, r.updates)
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = nil
}

func newTestLedger(pool *pgxpool.Pool) *ledger.Ledger {
	return ledger.New(pool)
}

package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx wraps a pgx transaction and collects callbacks to run after a successful
// commit. Side effects that advertise committed state (socket fanout, cache
// invalidation) must go through AfterCommit so they can never observe a
// rollback.
type Tx struct {
	pgx.Tx
	afterCommit []func()
}

// AfterCommit registers fn to run once the transaction durably commits.
// Callbacks run in registration order. A callback that panics or misbehaves is
// logged and skipped; it can never retroactively fail the commit.
func (t *Tx) AfterCommit(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}

// WithTx runs fn inside a transaction. On error the transaction rolls back
// and no post-commit callbacks run.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx *Tx) error) error {
	pgxTx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Tx{Tx: pgxTx}
	if err := fn(tx); err != nil {
		if rbErr := pgxTx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			slog.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, cb := range tx.afterCommit {
		runAfterCommit(cb)
	}
	return nil
}

func runAfterCommit(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("post-commit callback panicked", "panic", r)
		}
	}()
	fn()
}

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/happier-dev/happier-sub002/internal/models"
)

// CursorGoneError reports that a client-supplied cursor can no longer be
// resolved: either it is ahead of the account head or it fell below the
// retention floor. Current carries the authoritative head so the client can
// resync from a fresh snapshot.
type CursorGoneError struct {
	Current int64
}

func (e *CursorGoneError) Error() string {
	return fmt.Sprintf("cursor gone: resync and resume from %d", e.Current)
}

// Ledger is the per-account change log. Cursor allocation happens inside the
// caller's transaction so a cursor can never exist without its mutation.
type Ledger struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// MarkChanged allocates the next cursor for the account and appends one change
// record, all inside tx. Call at most once per logical change per affected
// account; a mutation visible to several accounts gets one independent cursor
// per account.
func (l *Ledger) MarkChanged(ctx context.Context, tx pgx.Tx, accountID string, kind models.ChangeKind, entityID string, hint json.RawMessage) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("invalid change kind %q", kind)
	}

	// The upsert takes the account's cursor row lock, serializing concurrent
	// allocations; RETURNING hands back a gapless strictly increasing value.
	var cursor int64
	err := tx.QueryRow(ctx,
		`INSERT INTO account_cursors (account_id, seq) VALUES ($1, 1)
		 ON CONFLICT (account_id) DO UPDATE SET seq = account_cursors.seq + 1
		 RETURNING seq`,
		accountID,
	).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate cursor: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO change_records (account_id, cursor, kind, entity_id, hint)
		 VALUES ($1, $2, $3, $4, $5)`,
		accountID, cursor, string(kind), entityID, hint,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append change record: %w", err)
	}

	return cursor, nil
}

// ListChanges returns records with cursor > after, ordered by
// (cursor, kind, entity_id), capped at limit. When no records qualify the
// returned next cursor equals after so callers can keep polling with a stable
// token. The (kind, entity_id) tie-break only makes output deterministic when
// bulk operations share a cursor; it carries no other meaning.
func (l *Ledger) ListChanges(ctx context.Context, accountID string, after int64, limit int) ([]models.ChangeRecord, int64, error) {
	if limit <= 0 {
		return nil, 0, errors.New("limit must be positive")
	}

	rows, err := l.pool.Query(ctx,
		`SELECT cursor, account_id, kind, entity_id, changed_at, hint
		 FROM change_records
		 WHERE account_id = $1 AND cursor > $2
		 ORDER BY cursor ASC, kind ASC, entity_id ASC
		 LIMIT $3`,
		accountID, after, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var changes []models.ChangeRecord
	for rows.Next() {
		var rec models.ChangeRecord
		var kind string
		err := rows.Scan(&rec.Cursor, &rec.AccountID, &kind, &rec.EntityID, &rec.ChangedAt, &rec.Hint)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan change record: %w", err)
		}
		rec.Kind = models.ChangeKind(kind)
		changes = append(changes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating changes: %w", err)
	}

	nextCursor := after
	if len(changes) > 0 {
		nextCursor = changes[len(changes)-1].Cursor
	}
	return changes, nextCursor, nil
}

// CursorState returns the account's head cursor and retention floor. Accounts
// with no recorded changes report zero for both.
func (l *Ledger) CursorState(ctx context.Context, accountID string) (models.AccountCursor, error) {
	state := models.AccountCursor{AccountID: accountID}
	err := l.pool.QueryRow(ctx,
		`SELECT seq, changes_floor FROM account_cursors WHERE account_id = $1`,
		accountID,
	).Scan(&state.Seq, &state.ChangesFloor)
	if errors.Is(err, pgx.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to get cursor state: %w", err)
	}
	return state, nil
}

// CheckCursor validates a client-supplied cursor against the account's current
// state. A cursor ahead of the head or below the retention floor yields
// CursorGoneError; the client must fall back to a full snapshot resync. A
// cursor exactly at the floor is still serviceable: every surviving record has
// a higher cursor, so nothing the client needs was pruned.
func (l *Ledger) CheckCursor(ctx context.Context, accountID string, after int64) error {
	state, err := l.CursorState(ctx, accountID)
	if err != nil {
		return err
	}
	if after > state.Seq || after < state.ChangesFloor {
		return &CursorGoneError{Current: state.Seq}
	}
	return nil
}

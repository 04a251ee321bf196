package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/happier-dev/happier-sub002/internal/database"
	"github.com/happier-dev/happier-sub002/internal/ledger"
	"github.com/happier-dev/happier-sub002/internal/models"
	"github.com/happier-dev/happier-sub002/internal/realtime"
)

// SessionService owns the CAS mutations on sessions. Every successful write
// allocates one ledger cursor per account that can see the session and
// fans the cursor-stamped update out after commit.
type SessionService struct {
	pool    *pgxpool.Pool
	ledger  *ledger.Ledger
	emitter UpdateEmitter
	logger  *slog.Logger
}

func NewSessionService(pool *pgxpool.Pool, ledger *ledger.Ledger, emitter UpdateEmitter) *SessionService {
	return &SessionService{
		pool:    pool,
		ledger:  ledger,
		emitter: emitter,
		logger:  slog.Default().With("component", "session-service"),
	}
}

// Create inserts a session idempotently: the same id under the same account
// is a no-op success with DidWrite=false and no ledger call (so no duplicate
// fanout); the same id under a different account is a hard conflict.
func (s *SessionService) Create(ctx context.Context, accountID, sessionID, tag, metadata string) (CreateResult, error) {
	var res CreateResult
	if sessionID == "" || accountID == "" {
		res.Status = StatusInvalidParams
		return res, nil
	}

	err := database.WithTx(ctx, s.pool, func(tx *database.Tx) error {
		var ownerID string
		err := tx.QueryRow(ctx, `SELECT account_id FROM sessions WHERE id = $1`, sessionID).Scan(&ownerID)
		if err == nil {
			if ownerID == accountID {
				res.Status = StatusOK
				return nil
			}
			res.Status = StatusConflict
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check existing session: %w", err)
		}

		tag2, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, account_id, tag, metadata) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO NOTHING`,
			sessionID, accountID, tag, metadata)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		if tag2.RowsAffected() == 0 {
			// Lost a create race; re-read for the authoritative owner.
			if err := tx.QueryRow(ctx, `SELECT account_id FROM sessions WHERE id = $1`, sessionID).Scan(&ownerID); err != nil {
				return fmt.Errorf("failed to re-read session: %w", err)
			}
			if ownerID == accountID {
				res.Status = StatusOK
			} else {
				res.Status = StatusConflict
			}
			return nil
		}

		cursor, err := s.ledger.MarkChanged(ctx, tx, accountID, models.KindSession, sessionID, nil)
		if err != nil {
			return err
		}
		res = CreateResult{Status: StatusOK, DidWrite: true, Cursor: cursor}

		container := models.NewUpdateContainer(cursor, &models.SessionUpdatedBody{
			SessionID: sessionID,
			Metadata:  &models.VersionedValue{Value: metadata, Version: 1},
		})
		tx.AfterCommit(func() {
			s.emitter.EmitUpdate(realtime.UserScoped(accountID), container)
		})
		return nil
	})
	if err != nil {
		res.Status = StatusInternal
		return res, err
	}
	return res, nil
}

// UpdateMetadata replaces the session metadata if expectedVersion still
// matches, classic compare-and-swap with a conditional UPDATE re-check.
func (s *SessionService) UpdateMetadata(ctx context.Context, accountID, sessionID string, expectedVersion int64, metadata string) (ValueResult, error) {
	return s.updateField(ctx, accountID, sessionID, expectedVersion, metadata, "metadata", "metadata_version",
		func(value string, version int64) models.UpdateBody {
			return &models.SessionUpdatedBody{
				SessionID: sessionID,
				Metadata:  &models.VersionedValue{Value: value, Version: version},
			}
		})
}

// UpdateAgentState is the CAS write for the agent-state blob.
func (s *SessionService) UpdateAgentState(ctx context.Context, accountID, sessionID string, expectedVersion int64, state string) (ValueResult, error) {
	return s.updateField(ctx, accountID, sessionID, expectedVersion, state, "agent_state", "agent_state_version",
		func(value string, version int64) models.UpdateBody {
			return &models.SessionUpdatedBody{
				SessionID:  sessionID,
				AgentState: &models.VersionedValue{Value: value, Version: version},
			}
		})
}

func (s *SessionService) updateField(ctx context.Context, accountID, sessionID string, expectedVersion int64, value, column, versionColumn string, body func(string, int64) models.UpdateBody) (ValueResult, error) {
	var res ValueResult
	err := database.WithTx(ctx, s.pool, func(tx *database.Tx) error {
		var ownerID string
		var current *string
		var version int64
		query := fmt.Sprintf(`SELECT account_id, %s, %s FROM sessions WHERE id = $1`, column, versionColumn)
		err := tx.QueryRow(ctx, query, sessionID).Scan(&ownerID, &current, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Status = StatusNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}
		if ownerID != accountID {
			res.Status = StatusNotFound
			return nil
		}
		if version != expectedVersion {
			res = mismatch(current, version)
			return nil
		}

		// The WHERE clause re-checks the version: a writer that raced us
		// between the read and here makes this affect zero rows.
		update := fmt.Sprintf(
			`UPDATE sessions SET %s = $2, %s = %s + 1, updated_at = NOW()
			 WHERE id = $1 AND %s = $3`,
			column, versionColumn, versionColumn, versionColumn)
		tag, err := tx.Exec(ctx, update, sessionID, value, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := tx.QueryRow(ctx, query, sessionID).Scan(&ownerID, &current, &version); err != nil {
				return fmt.Errorf("failed to re-read session: %w", err)
			}
			res = mismatch(current, version)
			return nil
		}

		newVersion := expectedVersion + 1
		audience, err := sessionAudience(ctx, tx, sessionID, ownerID)
		if err != nil {
			return err
		}
		for _, acct := range audience {
			cursor, err := s.ledger.MarkChanged(ctx, tx, acct, models.KindSession, sessionID, nil)
			if err != nil {
				return err
			}
			if acct == ownerID {
				res.Cursor = cursor
			}
			// Each recipient gets a container stamped with its own cursor;
			// cursors are account-private and never shared across recipients.
			acct := acct
			container := models.NewUpdateContainer(cursor, body(value, newVersion))
			tx.AfterCommit(func() {
				s.emitter.EmitUpdate(realtime.UserScoped(acct), container)
			})
		}
		res.Status = StatusOK
		res.Version = newVersion
		res.Value = value
		return nil
	})
	if err != nil {
		res.Status = StatusInternal
		return res, err
	}
	return res, nil
}

const sessionColumns = `id, account_id, tag, metadata, metadata_version,
	agent_state, agent_state_version, active, active_at, created_at, updated_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var sess models.Session
	err := row.Scan(&sess.ID, &sess.AccountID, &sess.Tag, &sess.Metadata,
		&sess.MetadataVersion, &sess.AgentState, &sess.AgentStateVersion,
		&sess.Active, &sess.ActiveAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Get returns the session when the caller owns it or holds a share on it.
func (s *SessionService) Get(ctx context.Context, accountID, sessionID string) (*models.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE id = $1 AND (account_id = $2 OR EXISTS (
		   SELECT 1 FROM shares WHERE session_id = sessions.id AND recipient_id = $2))`,
		sessionID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return sess, nil
}

// List returns the account's own sessions plus sessions shared with it,
// newest first.
func (s *SessionService) List(ctx context.Context, accountID string) ([]models.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE account_id = $1
		    OR id IN (SELECT session_id FROM shares WHERE recipient_id = $1)
		 ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func mismatch(current *string, version int64) ValueResult {
	res := ValueResult{Status: StatusVersionMismatch, Version: version}
	if current != nil {
		res.Value = *current
	}
	return res
}

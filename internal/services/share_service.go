package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/happier-dev/happier-sub002/internal/database"
	"github.com/happier-dev/happier-sub002/internal/ledger"
	"github.com/happier-dev/happier-sub002/internal/models"
	"github.com/happier-dev/happier-sub002/internal/realtime"
)

// ShareService grants and revokes session shares. A share change is visible
// to two accounts, so the ledger is called once per account and each gets an
// update stamped with its own cursor; neither can observe the other's.
type ShareService struct {
	pool    *pgxpool.Pool
	ledger  *ledger.Ledger
	emitter UpdateEmitter
	logger  *slog.Logger
}

func NewShareService(pool *pgxpool.Pool, ledger *ledger.Ledger, emitter UpdateEmitter) *ShareService {
	return &ShareService{
		pool:    pool,
		ledger:  ledger,
		emitter: emitter,
		logger:  slog.Default().With("component", "share-service"),
	}
}

// Create grants recipientID access to the owner's session. Granting an
// already-existing share is a no-op success with DidWrite=false.
func (s *ShareService) Create(ctx context.Context, ownerID, sessionID, recipientID string) (CreateResult, error) {
	var res CreateResult
	if sessionID == "" || recipientID == "" || recipientID == ownerID {
		res.Status = StatusInvalidParams
		return res, nil
	}

	err := database.WithTx(ctx, s.pool, func(tx *database.Tx) error {
		var sessionOwner string
		err := tx.QueryRow(ctx, `SELECT account_id FROM sessions WHERE id = $1`, sessionID).Scan(&sessionOwner)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Status = StatusNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}
		if sessionOwner != ownerID {
			res.Status = StatusNotFound
			return nil
		}

		shareID := uuid.NewString()
		tag, err := tx.Exec(ctx,
			`INSERT INTO shares (id, session_id, owner_id, recipient_id) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (session_id, recipient_id) DO NOTHING`,
			shareID, sessionID, ownerID, recipientID)
		if err != nil {
			return fmt.Errorf("failed to create share: %w", err)
		}
		if tag.RowsAffected() == 0 {
			res.Status = StatusOK
			return nil
		}

		body := &models.ShareCreatedBody{ShareID: shareID, SessionID: sessionID, OwnerID: ownerID}
		cursor, err := s.fanout(ctx, tx, shareID, ownerID, recipientID, body)
		if err != nil {
			return err
		}
		res = CreateResult{Status: StatusOK, DidWrite: true, Cursor: cursor}
		return nil
	})
	if err != nil {
		res.Status = StatusInternal
		return res, err
	}
	return res, nil
}

// Revoke removes a share. Only the session owner may revoke; a share the
// caller doesn't own reads as not found.
func (s *ShareService) Revoke(ctx context.Context, ownerID, shareID string) (CreateResult, error) {
	var res CreateResult
	if shareID == "" {
		res.Status = StatusInvalidParams
		return res, nil
	}

	err := database.WithTx(ctx, s.pool, func(tx *database.Tx) error {
		var sessionID, shareOwner, recipientID string
		err := tx.QueryRow(ctx,
			`SELECT session_id, owner_id, recipient_id FROM shares WHERE id = $1`, shareID,
		).Scan(&sessionID, &shareOwner, &recipientID)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Status = StatusNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read share: %w", err)
		}
		if shareOwner != ownerID {
			res.Status = StatusNotFound
			return nil
		}

		if _, err := tx.Exec(ctx, `DELETE FROM shares WHERE id = $1`, shareID); err != nil {
			return fmt.Errorf("failed to delete share: %w", err)
		}

		body := &models.ShareRevokedBody{ShareID: shareID, SessionID: sessionID}
		cursor, err := s.fanout(ctx, tx, shareID, ownerID, recipientID, body)
		if err != nil {
			return err
		}
		res = CreateResult{Status: StatusOK, DidWrite: true, Cursor: cursor}
		return nil
	})
	if err != nil {
		res.Status = StatusInternal
		return res, err
	}
	return res, nil
}

// List returns every share the account participates in, granted or received.
func (s *ShareService) List(ctx context.Context, accountID string) ([]models.Share, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, owner_id, recipient_id, created_at
		 FROM shares WHERE owner_id = $1 OR recipient_id = $1
		 ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()

	var shares []models.Share
	for rows.Next() {
		var sh models.Share
		if err := rows.Scan(&sh.ID, &sh.SessionID, &sh.OwnerID, &sh.RecipientID, &sh.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		shares = append(shares, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shares: %w", err)
	}
	return shares, nil
}

// fanout allocates one cursor per affected account and schedules one
// post-commit emission per account. Returns the owner's cursor.
func (s *ShareService) fanout(ctx context.Context, tx *database.Tx, shareID, ownerID, recipientID string, body models.UpdateBody) (int64, error) {
	var ownerCursor int64
	for _, acct := range []string{ownerID, recipientID} {
		cursor, err := s.ledger.MarkChanged(ctx, tx, acct, models.KindShare, shareID, nil)
		if err != nil {
			return 0, err
		}
		if acct == ownerID {
			ownerCursor = cursor
		}
		acct := acct
		container := models.NewUpdateContainer(cursor, body)
		tx.AfterCommit(func() {
			s.emitter.EmitUpdate(realtime.UserScoped(acct), container)
		})
	}
	return ownerCursor, nil
}

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

// ArtifactService owns artifact creation and the independent header/body CAS
// writes. Artifacts are visible to their owner only.
type ArtifactService struct {
	pool    *pgxpool.Pool
	ledger  *ledger.Ledger
	emitter UpdateEmitter
	logger  *slog.Logger
}

func NewArtifactService(pool *pgxpool.Pool, ledger *ledger.Ledger, emitter UpdateEmitter) *ArtifactService {
	return &ArtifactService{
		pool:    pool,
		ledger:  ledger,
		emitter: emitter,
		logger:  slog.Default().With("component", "artifact-service"),
	}
}

// Create is idempotent per owner: re-creating an existing id under the same
// account succeeds without writing or allocating a cursor; the same id under
// another account is a conflict.
func (s *ArtifactService) Create(ctx context.Context, accountID, artifactID string, header, body []byte) (CreateResult, error) {
	var res CreateResult
	if artifactID == "" || accountID == "" {
		res.Status = StatusInvalidParams
		return res, nil
	}

	err := database.WithTx(ctx, s.pool, func(tx *database.Tx) error {
		var ownerID string
		err := tx.QueryRow(ctx, `SELECT account_id FROM artifacts WHERE id = $1`, artifactID).Scan(&ownerID)
		if err == nil {
			if ownerID == accountID {
				res.Status = StatusOK
				return nil
			}
			res.Status = StatusConflict
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check existing artifact: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO artifacts (id, account_id, header, body) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO NOTHING`,
			artifactID, accountID, header, body)
		if err != nil {
			return fmt.Errorf("failed to create artifact: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := tx.QueryRow(ctx, `SELECT account_id FROM artifacts WHERE id = $1`, artifactID).Scan(&ownerID); err != nil {
				return fmt.Errorf("failed to re-read artifact: %w", err)
			}
			if ownerID == accountID {
				res.Status = StatusOK
			} else {
				res.Status = StatusConflict
			}
			return nil
		}

		cursor, err := s.ledger.MarkChanged(ctx, tx, accountID, models.KindArtifact, artifactID, nil)
		if err != nil {
			return err
		}
		res = CreateResult{Status: StatusOK, DidWrite: true, Cursor: cursor}

		container := models.NewUpdateContainer(cursor, &models.ArtifactUpdatedBody{
			ArtifactID: artifactID,
			Header:     &models.VersionedBytes{Value: header, Version: 1},
			Body:       &models.VersionedBytes{Value: body, Version: 1},
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

// Get returns the artifact when the caller owns it.
func (s *ArtifactService) Get(ctx context.Context, accountID, artifactID string) (*models.Artifact, error) {
	var a models.Artifact
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, header, header_version, body, body_version, created_at, updated_at
		 FROM artifacts WHERE id = $1 AND account_id = $2`,
		artifactID, accountID,
	).Scan(&a.ID, &a.AccountID, &a.Header, &a.HeaderVersion, &a.Body, &a.BodyVersion,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return &a, nil
}

func (s *ArtifactService) UpdateHeader(ctx context.Context, accountID, artifactID string, expectedVersion int64, header []byte) (BytesResult, error) {
	return s.updateField(ctx, accountID, artifactID, expectedVersion, header, "header", "header_version",
		func(value []byte, version int64) models.UpdateBody {
			return &models.ArtifactUpdatedBody{
				ArtifactID: artifactID,
				Header:     &models.VersionedBytes{Value: value, Version: version},
			}
		})
}

func (s *ArtifactService) UpdateBody(ctx context.Context, accountID, artifactID string, expectedVersion int64, body []byte) (BytesResult, error) {
	return s.updateField(ctx, accountID, artifactID, expectedVersion, body, "body", "body_version",
		func(value []byte, version int64) models.UpdateBody {
			return &models.ArtifactUpdatedBody{
				ArtifactID: artifactID,
				Body:       &models.VersionedBytes{Value: value, Version: version},
			}
		})
}

func (s *ArtifactService) updateField(ctx context.Context, accountID, artifactID string, expectedVersion int64, value []byte, column, versionColumn string, body func([]byte, int64) models.UpdateBody) (BytesResult, error) {
	var res BytesResult
	err := database.WithTx(ctx, s.pool, func(tx *database.Tx) error {
		var ownerID string
		var current []byte
		var version int64
		query := fmt.Sprintf(`SELECT account_id, %s, %s FROM artifacts WHERE id = $1`, column, versionColumn)
		err := tx.QueryRow(ctx, query, artifactID).Scan(&ownerID, &current, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Status = StatusNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read artifact: %w", err)
		}
		if ownerID != accountID {
			res.Status = StatusNotFound
			return nil
		}
		if version != expectedVersion {
			res = BytesResult{Status: StatusVersionMismatch, Version: version, Value: current}
			return nil
		}

		update := fmt.Sprintf(
			`UPDATE artifacts SET %s = $2, %s = %s + 1, updated_at = NOW()
			 WHERE id = $1 AND %s = $3`,
			column, versionColumn, versionColumn, versionColumn)
		tag, err := tx.Exec(ctx, update, artifactID, value, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update artifact: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := tx.QueryRow(ctx, query, artifactID).Scan(&ownerID, &current, &version); err != nil {
				return fmt.Errorf("failed to re-read artifact: %w", err)
			}
			res = BytesResult{Status: StatusVersionMismatch, Version: version, Value: current}
			return nil
		}

		newVersion := expectedVersion + 1
		cursor, err := s.ledger.MarkChanged(ctx, tx, accountID, models.KindArtifact, artifactID, nil)
		if err != nil {
			return err
		}
		res = BytesResult{Status: StatusOK, Version: newVersion, Value: value, Cursor: cursor}

		container := models.NewUpdateContainer(cursor, body(value, newVersion))
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

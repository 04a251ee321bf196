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

// AccountService owns the CAS write on account settings.
type AccountService struct {
	pool    *pgxpool.Pool
	ledger  *ledger.Ledger
	emitter UpdateEmitter
	logger  *slog.Logger
}

func NewAccountService(pool *pgxpool.Pool, ledger *ledger.Ledger, emitter UpdateEmitter) *AccountService {
	return &AccountService{
		pool:    pool,
		ledger:  ledger,
		emitter: emitter,
		logger:  slog.Default().With("component", "account-service"),
	}
}

// Get returns the caller's account record.
func (s *AccountService) Get(ctx context.Context, accountID string) (*models.Account, error) {
	var a models.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, settings, settings_version, created_at, updated_at FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&a.ID, &a.Settings, &a.SettingsVersion, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	return &a, nil
}

func (s *AccountService) UpdateSettings(ctx context.Context, accountID string, expectedVersion int64, settings string) (ValueResult, error) {
	var res ValueResult
	err := database.WithTx(ctx, s.pool, func(tx *database.Tx) error {
		var current string
		var version int64
		err := tx.QueryRow(ctx,
			`SELECT settings, settings_version FROM accounts WHERE id = $1`, accountID,
		).Scan(&current, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Status = StatusNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read account: %w", err)
		}
		if version != expectedVersion {
			res = ValueResult{Status: StatusVersionMismatch, Version: version, Value: current}
			return nil
		}

		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET settings = $2, settings_version = settings_version + 1, updated_at = NOW()
			 WHERE id = $1 AND settings_version = $3`,
			accountID, settings, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := tx.QueryRow(ctx,
				`SELECT settings, settings_version FROM accounts WHERE id = $1`, accountID,
			).Scan(&current, &version); err != nil {
				return fmt.Errorf("failed to re-read account: %w", err)
			}
			res = ValueResult{Status: StatusVersionMismatch, Version: version, Value: current}
			return nil
		}

		newVersion := expectedVersion + 1
		cursor, err := s.ledger.MarkChanged(ctx, tx, accountID, models.KindAccount, accountID, nil)
		if err != nil {
			return err
		}
		res = ValueResult{Status: StatusOK, Version: newVersion, Value: settings, Cursor: cursor}

		container := models.NewUpdateContainer(cursor, &models.AccountUpdatedBody{
			AccountID: accountID,
			Settings:  &models.VersionedValue{Value: settings, Version: newVersion},
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

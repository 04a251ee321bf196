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

// MachineService owns machine registration and the daemon-state/metadata CAS
// writes. Machines are visible to their owning account only.
type MachineService struct {
	pool    *pgxpool.Pool
	ledger  *ledger.Ledger
	emitter UpdateEmitter
	logger  *slog.Logger
}

func NewMachineService(pool *pgxpool.Pool, ledger *ledger.Ledger, emitter UpdateEmitter) *MachineService {
	return &MachineService{
		pool:    pool,
		ledger:  ledger,
		emitter: emitter,
		logger:  slog.Default().With("component", "machine-service"),
	}
}

// Create registers a machine idempotently, same policy as sessions and
// artifacts: same id + same owner is a no-op success, another owner's id is a
// conflict.
func (s *MachineService) Create(ctx context.Context, accountID, machineID, metadata string) (CreateResult, error) {
	var res CreateResult
	if machineID == "" || accountID == "" {
		res.Status = StatusInvalidParams
		return res, nil
	}

	err := database.WithTx(ctx, s.pool, func(tx *database.Tx) error {
		var ownerID string
		err := tx.QueryRow(ctx, `SELECT account_id FROM machines WHERE id = $1`, machineID).Scan(&ownerID)
		if err == nil {
			if ownerID == accountID {
				res.Status = StatusOK
				return nil
			}
			res.Status = StatusConflict
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check existing machine: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO machines (id, account_id, metadata) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
			machineID, accountID, metadata)
		if err != nil {
			return fmt.Errorf("failed to create machine: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := tx.QueryRow(ctx, `SELECT account_id FROM machines WHERE id = $1`, machineID).Scan(&ownerID); err != nil {
				return fmt.Errorf("failed to re-read machine: %w", err)
			}
			if ownerID == accountID {
				res.Status = StatusOK
			} else {
				res.Status = StatusConflict
			}
			return nil
		}

		cursor, err := s.ledger.MarkChanged(ctx, tx, accountID, models.KindMachine, machineID, nil)
		if err != nil {
			return err
		}
		res = CreateResult{Status: StatusOK, DidWrite: true, Cursor: cursor}

		container := models.NewUpdateContainer(cursor, &models.MachineUpdatedBody{
			MachineID: machineID,
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

const machineColumns = `id, account_id, metadata, metadata_version,
	daemon_state, daemon_state_version, active, active_at, created_at, updated_at`

func scanMachine(row pgx.Row) (*models.Machine, error) {
	var m models.Machine
	err := row.Scan(&m.ID, &m.AccountID, &m.Metadata, &m.MetadataVersion,
		&m.DaemonState, &m.DaemonStateVersion, &m.Active, &m.ActiveAt,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Get returns the machine when the caller owns it.
func (s *MachineService) Get(ctx context.Context, accountID, machineID string) (*models.Machine, error) {
	m, err := scanMachine(s.pool.QueryRow(ctx,
		`SELECT `+machineColumns+` FROM machines WHERE id = $1 AND account_id = $2`,
		machineID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read machine: %w", err)
	}
	return m, nil
}

// List returns every machine registered under the account, newest first.
func (s *MachineService) List(ctx context.Context, accountID string) ([]models.Machine, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+machineColumns+` FROM machines WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	defer rows.Close()

	var machines []models.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating machines: %w", err)
	}
	return machines, nil
}

func (s *MachineService) UpdateMetadata(ctx context.Context, accountID, machineID string, expectedVersion int64, metadata string) (ValueResult, error) {
	return s.updateField(ctx, accountID, machineID, expectedVersion, metadata, "metadata", "metadata_version",
		func(value string, version int64) models.UpdateBody {
			return &models.MachineUpdatedBody{
				MachineID: machineID,
				Metadata:  &models.VersionedValue{Value: value, Version: version},
			}
		})
}

func (s *MachineService) UpdateDaemonState(ctx context.Context, accountID, machineID string, expectedVersion int64, state string) (ValueResult, error) {
	return s.updateField(ctx, accountID, machineID, expectedVersion, state, "daemon_state", "daemon_state_version",
		func(value string, version int64) models.UpdateBody {
			return &models.MachineUpdatedBody{
				MachineID:   machineID,
				DaemonState: &models.VersionedValue{Value: value, Version: version},
			}
		})
}

func (s *MachineService) updateField(ctx context.Context, accountID, machineID string, expectedVersion int64, value, column, versionColumn string, body func(string, int64) models.UpdateBody) (ValueResult, error) {
	var res ValueResult
	err := database.WithTx(ctx, s.pool, func(tx *database.Tx) error {
		var ownerID string
		var current *string
		var version int64
		query := fmt.Sprintf(`SELECT account_id, %s, %s FROM machines WHERE id = $1`, column, versionColumn)
		err := tx.QueryRow(ctx, query, machineID).Scan(&ownerID, &current, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Status = StatusNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read machine: %w", err)
		}
		if ownerID != accountID {
			res.Status = StatusNotFound
			return nil
		}
		if version != expectedVersion {
			res = mismatch(current, version)
			return nil
		}

		update := fmt.Sprintf(
			`UPDATE machines SET %s = $2, %s = %s + 1, updated_at = NOW()
			 WHERE id = $1 AND %s = $3`,
			column, versionColumn, versionColumn, versionColumn)
		tag, err := tx.Exec(ctx, update, machineID, value, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update machine: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if err := tx.QueryRow(ctx, query, machineID).Scan(&ownerID, &current, &version); err != nil {
				return fmt.Errorf("failed to re-read machine: %w", err)
			}
			res = mismatch(current, version)
			return nil
		}

		newVersion := expectedVersion + 1
		cursor, err := s.ledger.MarkChanged(ctx, tx, accountID, models.KindMachine, machineID, nil)
		if err != nil {
			return err
		}
		res = ValueResult{Status: StatusOK, Version: newVersion, Value: value, Cursor: cursor}

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

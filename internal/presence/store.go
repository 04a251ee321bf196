package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/happier-dev/happier-sub002/internal/models"
)

var ErrAccessDenied = errors.New("access denied")

// Store persists coalesced liveness observations. Writes must be monotonic:
// a stale timestamp never regresses a fresher stored value.
type Store interface {
	FlushSessionActivity(ctx context.Context, sessionID string, ts int64) error
	FlushMachineActivity(ctx context.Context, machineID string, ts int64) error
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GREATEST keeps the stored timestamp monotonic even when two flushers race.
func (s *PostgresStore) FlushSessionActivity(ctx context.Context, sessionID string, ts int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions
		 SET active = TRUE, active_at = GREATEST(active_at, $2), updated_at = NOW()
		 WHERE id = $1`,
		sessionID, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to flush session activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FlushMachineActivity(ctx context.Context, machineID string, ts int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE machines
		 SET active = TRUE, active_at = GREATEST(active_at, $2), updated_at = NOW()
		 WHERE id = $1`,
		machineID, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to flush machine activity: %w", err)
	}
	return nil
}

// PostgresAccessChecker validates liveness pings against ownership and share
// grants.
type PostgresAccessChecker struct {
	pool *pgxpool.Pool
}

func NewPostgresAccessChecker(pool *pgxpool.Pool) *PostgresAccessChecker {
	return &PostgresAccessChecker{pool: pool}
}

func (c *PostgresAccessChecker) CanAccessSession(ctx context.Context, accountID, sessionID string) (bool, error) {
	var ok bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM sessions WHERE id = $1 AND account_id = $2
		   UNION ALL
		   SELECT 1 FROM shares WHERE session_id = $1 AND recipient_id = $2
		 )`,
		sessionID, accountID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check session access: %w", err)
	}
	return ok, nil
}

func (c *PostgresAccessChecker) CanAccessMachine(ctx context.Context, accountID, machineID string) (bool, error) {
	var ok bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM machines WHERE id = $1 AND account_id = $2)`,
		machineID, accountID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check machine access: %w", err)
	}
	return ok, nil
}

// flushAll writes a snapshot entry by entry, scatter/gather style. Each
// failure is captured and logged individually; the returned map holds only
// the entries that were durably written.
func flushAll(ctx context.Context, store Store, snapshot map[Key]Pending, logger *slog.Logger) map[Key]Pending {
	succeeded := make(map[Key]Pending, len(snapshot))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for k, p := range snapshot {
		wg.Add(1)
		go func(k Key, p Pending) {
			defer wg.Done()
			var err error
			switch k.Kind {
			case models.PresenceSession:
				err = store.FlushSessionActivity(ctx, k.ID, p.Timestamp)
			case models.PresenceMachine:
				err = store.FlushMachineActivity(ctx, k.ID, p.Timestamp)
			default:
				err = fmt.Errorf("unknown presence kind %q", k.Kind)
			}
			if err != nil {
				logger.Warn("presence flush failed", "kind", k.Kind, "id", k.ID, "error", err)
				return
			}
			mu.Lock()
			succeeded[k] = p
			mu.Unlock()
		}(k, p)
	}
	wg.Wait()
	return succeeded
}

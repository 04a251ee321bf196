package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// sessionAudience resolves every account that must observe a change to the
// session: the owner first, then each share recipient. Keeping this in one
// place means a new visibility rule cannot be missed at one call site and
// present at another.
func sessionAudience(ctx context.Context, tx pgx.Tx, sessionID, ownerID string) ([]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT recipient_id FROM shares WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query share recipients: %w", err)
	}
	defer rows.Close()

	accounts := []string{ownerID}
	for rows.Next() {
		var recipient string
		if err := rows.Scan(&recipient); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		if recipient != ownerID {
			accounts = append(accounts, recipient)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}
	return accounts, nil
}

// Package members reads cabinet membership. Membership is managed outside
// the sync subsystem; Add backs the add-member admin command.
package members

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/cabinetsync/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// MembersOf returns the set of active members of cabinetID.
func (r *PostgresRepository) MembersOf(ctx context.Context, cabinetID string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM cabinet_members WHERE cabinet_id = $1 AND is_active`, cabinetID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Add(ctx context.Context, cabinetID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cabinet_members (cabinet_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (cabinet_id, user_id) DO UPDATE SET is_active = TRUE`,
		cabinetID, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

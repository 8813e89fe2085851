// Package auditentries persists the sync audit trail.
package auditentries

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/cabinetsync/internal/dbx"
	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.SyncAuditEntry) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query :=
		`INSERT INTO sync_audit (sync_id, action, performed_by, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`

	err = r.db.QueryRowContext(ctx, query, e.SyncID, e.Action, e.PerformedBy, raw, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListBySyncID(ctx context.Context, syncID string) ([]*models.SyncAuditEntry, error) {
	query :=
		`SELECT id, sync_id, action, performed_by, metadata, created_at
		 FROM sync_audit
		 WHERE sync_id = $1
		 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, syncID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.SyncAuditEntry
	for rows.Next() {
		e := &models.SyncAuditEntry{}
		var raw []byte
		if err := rows.Scan(&e.ID, &e.SyncID, &e.Action, &e.PerformedBy, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

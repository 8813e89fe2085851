// Package permissions stores sync permission rows, the relational half of a
// sync package.
package permissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/dmitrijs2005/cabinetsync/internal/dbx"
	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `SELECT id, cabinet_id, patient_local_hash, owner_id, target_id, permission,
		sync_type, cabinet_key_hash, key_version, wrapped_session_key, COALESCE(idempotency_key, ''),
		last_synced_at, is_active, expires_at, created_at
		FROM sync_permissions`

type scanner interface {
	Scan(dest ...any) error
}

func scanPermission(s scanner) (*models.SyncPermission, error) {
	p := &models.SyncPermission{}
	err := s.Scan(&p.ID, &p.CabinetID, &p.PatientLocalHash, &p.OwnerID, &p.TargetID, &p.Permission,
		&p.SyncType, &p.CabinetKeyHash, &p.KeyVersion, &p.WrappedSessionKey, &p.IdempotencyKey,
		&p.LastSyncedAt, &p.IsActive, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts p and fills CreatedAt. A duplicate idempotency key yields
// common.ErrAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, p *models.SyncPermission) error {
	query :=
		`INSERT INTO sync_permissions (id, cabinet_id, patient_local_hash, owner_id, target_id, permission,
			sync_type, cabinet_key_hash, key_version, wrapped_session_key, idempotency_key, is_active, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, $12)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.CabinetID, p.PatientLocalHash, p.OwnerID, p.TargetID, p.Permission,
		p.SyncType, p.CabinetKeyHash, p.KeyVersion, p.WrappedSessionKey, nullable(p.IdempotencyKey), p.ExpiresAt,
	).Scan(&p.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	p.IsActive = true
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.SyncPermission, error) {
	p, err := scanPermission(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.SyncPermission, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = $1`, id)
}

// GetActiveForTarget returns the active row for id addressed to targetID.
// Expiration is left to the caller.
func (r *PostgresRepository) GetActiveForTarget(ctx context.Context, id, targetID string) (*models.SyncPermission, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = $1 AND target_id = $2 AND is_active`, id, targetID)
}

func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*models.SyncPermission, error) {
	return r.getOne(ctx, selectColumns+` WHERE owner_id = $1 AND idempotency_key = $2`, ownerID, key)
}

// ListActiveForTarget returns active, unexpired rows for targetID, newest
// first.
func (r *PostgresRepository) ListActiveForTarget(ctx context.Context, targetID string, now time.Time) ([]*models.SyncPermission, error) {
	query := selectColumns + ` WHERE target_id = $1 AND is_active AND expires_at > $2 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, targetID, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.SyncPermission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) TouchLastSynced(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sync_permissions SET last_synced_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

// Deactivate clears is_active on the row owned by ownerID. Deactivating an
// inactive row succeeds; a missing or foreign row yields
// common.ErrorNotFound.
func (r *PostgresRepository) Deactivate(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sync_permissions SET is_active = FALSE WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	switch n {
	case 0:
		return common.ErrorNotFound
	case 1:
		return nil
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Package cabinetkeys stores versioned cabinet keys, wrapped at rest.
package cabinetkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

const selectColumns = `SELECT cabinet_id, version, sealed_salt, key_hash, wrapped_key, is_active, created_at FROM cabinet_keys`

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.CabinetKey, error) {
	k := &models.CabinetKey{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&k.CabinetID, &k.Version, &k.SealedSalt, &k.KeyHash, &k.WrappedKey, &k.IsActive, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return k, nil
}

func (r *PostgresRepository) GetActive(ctx context.Context, cabinetID string) (*models.CabinetKey, error) {
	return r.getOne(ctx, selectColumns+` WHERE cabinet_id = $1 AND is_active`, cabinetID)
}

func (r *PostgresRepository) Get(ctx context.Context, cabinetID string, version int) (*models.CabinetKey, error) {
	return r.getOne(ctx, selectColumns+` WHERE cabinet_id = $1 AND version = $2`, cabinetID, version)
}

// LatestVersion returns the highest stored version, or 0 when the cabinet
// has no keys yet.
func (r *PostgresRepository) LatestVersion(ctx context.Context, cabinetID string) (int, error) {
	var v int
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM cabinet_keys WHERE cabinet_id = $1`, cabinetID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// Insert stores k as the active version. A concurrent insert of the same
// version, or of a second active key, yields common.ErrAlreadyExists.
func (r *PostgresRepository) Insert(ctx context.Context, k *models.CabinetKey) error {
	query :=
		`INSERT INTO cabinet_keys (cabinet_id, version, sealed_salt, key_hash, wrapped_key, is_active)
		 VALUES ($1, $2, $3, $4, $5, TRUE)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, k.CabinetID, k.Version, k.SealedSalt, k.KeyHash, k.WrappedKey).Scan(&k.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	k.IsActive = true
	return nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, cabinetID string, version int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE cabinet_keys SET is_active = FALSE WHERE cabinet_id = $1 AND version = $2`, cabinetID, version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

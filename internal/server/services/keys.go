package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/dmitrijs2005/cabinetsync/internal/cryptox"
	"github.com/dmitrijs2005/cabinetsync/internal/dbx"
	"github.com/dmitrijs2005/cabinetsync/internal/logging"
	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/repomanager"
)

// deriveCabinetKey is a seam for tests; PBKDF2 at full strength is slow.
var deriveCabinetKey = cryptox.DeriveCabinetKey

// KeyVault is the cabinet key secret store. Each cabinet has at most one
// active key version; older versions stay readable so packages sealed
// before a rotation can still be opened.
type KeyVault struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	masterKey   []byte
	log         logging.Logger
	rand        io.Reader
}

func NewKeyVault(db *sql.DB, repomanager repomanager.RepositoryManager, masterKey []byte, log logging.Logger) *KeyVault {
	return &KeyVault{
		db:          db,
		repomanager: repomanager,
		masterKey:   masterKey,
		log:         log,
		rand:        rand.Reader,
	}
}

// GetOrCreateActive returns the active key of cabinetID, creating version 1
// (or the next version) when none is active.
func (v *KeyVault) GetOrCreateActive(ctx context.Context, cabinetID string) (*models.CabinetKey, error) {
	if cabinetID == "" {
		return nil, fmt.Errorf("%w: empty cabinet id", common.ErrValidation)
	}

	k, err := dbx.InTx(ctx, v.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.CabinetKey, error) {
		repo := v.repomanager.CabinetKeys(tx)

		k, err := repo.GetActive(ctx, cabinetID)
		if err == nil {
			return k, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return v.insertNext(ctx, tx, cabinetID)
	})

	// A concurrent request created the key first.
	if errors.Is(err, common.ErrAlreadyExists) {
		k, err = v.repomanager.CabinetKeys(v.db).GetActive(ctx, cabinetID)
	}
	if err != nil {
		return nil, fmt.Errorf("cabinet key %s: %w", cabinetID, err)
	}

	return v.open(k)
}

// Get returns a specific key version, active or not.
func (v *KeyVault) Get(ctx context.Context, cabinetID string, version int) (*models.CabinetKey, error) {
	k, err := v.repomanager.CabinetKeys(v.db).Get(ctx, cabinetID, version)
	if err != nil {
		return nil, fmt.Errorf("cabinet key %s v%d: %w", cabinetID, version, err)
	}
	return v.open(k)
}

// Rotate deactivates the active key of cabinetID and activates a freshly
// derived next version.
func (v *KeyVault) Rotate(ctx context.Context, cabinetID string) (*models.CabinetKey, error) {
	if cabinetID == "" {
		return nil, fmt.Errorf("%w: empty cabinet id", common.ErrValidation)
	}

	k, err := dbx.InTx(ctx, v.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.CabinetKey, error) {
		repo := v.repomanager.CabinetKeys(tx)

		cur, err := repo.GetActive(ctx, cabinetID)
		switch {
		case err == nil:
			if err := repo.Deactivate(ctx, cabinetID, cur.Version); err != nil {
				return nil, err
			}
		case errors.Is(err, common.ErrorNotFound):
		default:
			return nil, err
		}
		return v.insertNext(ctx, tx, cabinetID)
	})
	if err != nil {
		return nil, fmt.Errorf("rotate cabinet key %s: %w", cabinetID, err)
	}

	v.log.Info(ctx, "cabinet key rotated", "cabinet_id", cabinetID, "version", k.Version)
	return v.open(k)
}

func (v *KeyVault) insertNext(ctx context.Context, tx dbx.DBTX, cabinetID string) (*models.CabinetKey, error) {
	repo := v.repomanager.CabinetKeys(tx)

	latest, err := repo.LatestVersion(ctx, cabinetID)
	if err != nil {
		return nil, err
	}

	key, salt, err := deriveCabinetKey(v.rand, cabinetID, nil)
	if err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}
	defer cryptox.Wipe(salt)

	wrapped, err := cryptox.WrapKey(v.rand, v.masterKey, key)
	if err != nil {
		cryptox.Wipe(key)
		return nil, err
	}
	sealedSalt, err := cryptox.WrapKey(v.rand, v.masterKey, salt)
	if err != nil {
		cryptox.Wipe(key)
		return nil, err
	}

	k := &models.CabinetKey{
		CabinetID:  cabinetID,
		Version:    latest + 1,
		SealedSalt: sealedSalt,
		KeyHash:    cryptox.Hash(key),
		WrappedKey: wrapped,
		Key:        key,
	}
	if err := repo.Insert(ctx, k); err != nil {
		cryptox.Wipe(key)
		return nil, err
	}

	v.log.Info(ctx, "cabinet key created", "cabinet_id", cabinetID, "version", k.Version)
	return k, nil
}

// open unwraps the key material of k and checks it against the stored
// hash.
func (v *KeyVault) open(k *models.CabinetKey) (*models.CabinetKey, error) {
	if k.Key == nil {
		key, err := cryptox.UnwrapKey(v.masterKey, k.WrappedKey)
		if err != nil {
			return nil, fmt.Errorf("cabinet key %s v%d: %w", k.CabinetID, k.Version, err)
		}
		k.Key = key
	}
	if subtle.ConstantTimeCompare(cryptox.Hash(k.Key), k.KeyHash) != 1 {
		cryptox.Wipe(k.Key)
		k.Key = nil
		return nil, fmt.Errorf("%w: cabinet key %s v%d does not match its hash", common.ErrIntegrity, k.CabinetID, k.Version)
	}
	return k, nil
}

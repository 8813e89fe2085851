package cabinetkeys

import (
	"context"

	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
)

type Repository interface {
	GetActive(ctx context.Context, cabinetID string) (*models.CabinetKey, error)
	Get(ctx context.Context, cabinetID string, version int) (*models.CabinetKey, error)
	LatestVersion(ctx context.Context, cabinetID string) (int, error)
	Insert(ctx context.Context, k *models.CabinetKey) error
	Deactivate(ctx context.Context, cabinetID string, version int) error
}

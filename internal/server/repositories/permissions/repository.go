package permissions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.SyncPermission) error
	GetByID(ctx context.Context, id string) (*models.SyncPermission, error)
	GetActiveForTarget(ctx context.Context, id, targetID string) (*models.SyncPermission, error)
	FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*models.SyncPermission, error)
	ListActiveForTarget(ctx context.Context, targetID string, now time.Time) ([]*models.SyncPermission, error)
	TouchLastSynced(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id, ownerID string) error
}

package auditentries

import (
	"context"

	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
)

// Repository is append-only: entries are never updated or deleted.
type Repository interface {
	Append(ctx context.Context, e *models.SyncAuditEntry) error
	ListBySyncID(ctx context.Context, syncID string) ([]*models.SyncAuditEntry, error)
}

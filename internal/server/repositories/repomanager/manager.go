package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cabinetsync/internal/dbx"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/auditentries"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/cabinetkeys"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/members"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/permissions"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// runs against *sql.DB or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Permissions(db dbx.DBTX) permissions.Repository
	Audit(db dbx.DBTX) auditentries.Repository
	CabinetKeys(db dbx.DBTX) cabinetkeys.Repository
	Members(db dbx.DBTX) members.Repository
}

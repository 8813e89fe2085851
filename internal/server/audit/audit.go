// Package audit records the sync audit trail. Recording never fails the
// operation being audited.
package audit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/logging"
	"github.com/dmitrijs2005/cabinetsync/internal/metrics"
	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/auditentries"
)

type Logger struct {
	repo    auditentries.Repository
	log     logging.Logger
	metrics metrics.Reporter
	now     func() time.Time
}

func NewLogger(repo auditentries.Repository, log logging.Logger, m metrics.Reporter) *Logger {
	return &Logger{repo: repo, log: log, metrics: m, now: time.Now}
}

// Record appends an audit entry. Failures are logged and counted under
// metrics.AuditFailure, then dropped. The write is detached from ctx
// cancellation since the audited operation has already happened.
func (l *Logger) Record(ctx context.Context, syncID string, action models.AuditAction, performedBy string, meta map[string]string) {
	e := &models.SyncAuditEntry{
		SyncID:      syncID,
		Action:      action,
		PerformedBy: performedBy,
		Metadata:    meta,
		CreatedAt:   l.now().UTC(),
	}

	if err := l.repo.Append(context.WithoutCancel(ctx), e); err != nil {
		l.log.Error(ctx, "audit write failed",
			"sync_id", syncID, "action", string(action), "performed_by", performedBy, "error", err)
		_ = l.metrics.Count(metrics.AuditFailure, 1, map[string]string{"action": string(action)}, 1)
	}
}

package models

import "time"

// AuditAction is a sync lifecycle action.
type AuditAction string

const (
	AuditCreated AuditAction = "created"
	AuditSynced  AuditAction = "synced"
	AuditUpdated AuditAction = "updated"
	AuditRevoked AuditAction = "revoked"
	AuditExpired AuditAction = "expired"
)

// SyncAuditEntry is append-only.
type SyncAuditEntry struct {
	ID          int64
	SyncID      string
	Action      AuditAction
	PerformedBy string
	Metadata    map[string]string
	CreatedAt   time.Time
}

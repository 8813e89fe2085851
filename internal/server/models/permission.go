// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/payload"
)

// Permission is the access level granted to the target of a share.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionFull  Permission = "full"
)

func (p Permission) Valid() bool {
	switch p {
	case PermissionRead, PermissionWrite, PermissionFull:
		return true
	}
	return false
}

// SyncPermission is the metadata row of one sync package. Its ID is also
// the id of the encrypted blob. Only LastSyncedAt and IsActive change after
// creation.
type SyncPermission struct {
	ID               string
	CabinetID        string
	PatientLocalHash string
	OwnerID          string
	TargetID         string
	Permission       Permission
	SyncType         payload.SyncType
	// CabinetKeyHash and KeyVersion identify the cabinet key the package
	// was sealed with; rotation does not invalidate older packages.
	CabinetKeyHash []byte
	KeyVersion     int
	// WrappedSessionKey is the package session key sealed under a key
	// derived from the cabinet key, the package id and the target id.
	WrappedSessionKey []byte
	IdempotencyKey    string
	LastSyncedAt      *time.Time
	IsActive          bool
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// Expired reports whether the package is past its expiration at now.
func (p *SyncPermission) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

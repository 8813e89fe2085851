package models

import "time"

// CabinetKey is one version of a cabinet's durable key. SealedSalt and
// WrappedKey are sealed under the vault master key; Key is populated after
// unwrapping and must never be persisted.
type CabinetKey struct {
	CabinetID  string
	Version    int
	SealedSalt []byte
	KeyHash    []byte
	WrappedKey []byte
	IsActive   bool
	CreatedAt  time.Time

	Key []byte
}

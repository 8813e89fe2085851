// Package syncpkg wraps an encrypted envelope with its routing metadata
// (owner, target, cabinet, expiration) and validates packages on receipt.
package syncpkg

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/dmitrijs2005/cabinetsync/internal/cryptox"
	"github.com/dmitrijs2005/cabinetsync/internal/envelope"
	"github.com/dmitrijs2005/cabinetsync/internal/payload"
	"github.com/google/uuid"
)

// DefaultTTL is applied when a build request does not specify a TTL.
const DefaultTTL = common.DefaultPackageTTLHours * time.Hour

// SyncPackage is immutable once built.
type SyncPackage struct {
	ID        string
	OwnerID   string
	TargetID  string
	CabinetID string
	Envelope  *envelope.Envelope
	ExpiresAt time.Time
}

// BuildRequest holds the inputs of Builder.Build.
type BuildRequest struct {
	Payload        payload.Payload
	OwnerID        string
	TargetID       string
	CabinetID      string
	PatientLocalID string
	CabinetKey     []byte
	TTL            time.Duration
}

// Builder assembles sync packages.
type Builder struct {
	engine *envelope.Engine
	now    func() time.Time
	newID  func() string
}

// NewBuilder returns a Builder using engine for encryption and now as clock.
func NewBuilder(engine *envelope.Engine, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{
		engine: engine,
		now:    now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Build generates a session key, encrypts the payload and returns the
// package together with the session key. The session key is not part of
// the package: the caller decides how it reaches the target and must wipe
// it afterwards.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*SyncPackage, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if req.Payload == nil || req.OwnerID == "" || req.TargetID == "" || req.CabinetID == "" || req.PatientLocalID == "" {
		return nil, nil, fmt.Errorf("%w: incomplete build request", common.ErrValidation)
	}

	ttl := req.TTL
	switch {
	case ttl == 0:
		ttl = DefaultTTL
	case ttl < 0:
		return nil, nil, fmt.Errorf("%w: negative ttl", common.ErrValidation)
	}

	sessionKey, err := cryptox.GenerateSessionKey(b.engine.Random())
	if err != nil {
		return nil, nil, err
	}

	env, err := b.engine.Encrypt(req.Payload, req.CabinetKey, sessionKey, envelope.Metadata{
		CabinetID:          req.CabinetID,
		PatientFingerprint: cryptox.PatientFingerprint(req.PatientLocalID, req.CabinetID),
	})
	if err != nil {
		cryptox.Wipe(sessionKey)
		return nil, nil, fmt.Errorf("encrypt payload: %w", err)
	}

	return &SyncPackage{
		ID:        b.newID(),
		OwnerID:   req.OwnerID,
		TargetID:  req.TargetID,
		CabinetID: req.CabinetID,
		Envelope:  env,
		ExpiresAt: b.now().Add(ttl),
	}, sessionKey, nil
}

// Validate is a side-effect free pre-flight check run before any decryption
// attempt. It never panics and returns false for expired, incomplete or
// inconsistent packages. Decryption still verifies integrity on its own.
func Validate(pkg *SyncPackage, now time.Time) bool {
	if pkg == nil || pkg.Envelope == nil {
		return false
	}
	if now.After(pkg.ExpiresAt) {
		return false
	}
	if pkg.ID == "" || pkg.OwnerID == "" || pkg.TargetID == "" || pkg.CabinetID == "" {
		return false
	}

	env := pkg.Envelope
	if len(env.Ciphertext) == 0 || len(env.IV) == 0 || len(env.AuthTag) == 0 ||
		len(env.CombinedKeyHash) == 0 || env.Algorithm == "" {
		return false
	}
	if env.Metadata.CabinetID == "" || env.Metadata.CabinetID != pkg.CabinetID {
		return false
	}
	return true
}

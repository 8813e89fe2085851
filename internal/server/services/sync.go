package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/dmitrijs2005/cabinetsync/internal/cryptox"
	"github.com/dmitrijs2005/cabinetsync/internal/envelope"
	"github.com/dmitrijs2005/cabinetsync/internal/logging"
	"github.com/dmitrijs2005/cabinetsync/internal/metrics"
	"github.com/dmitrijs2005/cabinetsync/internal/payload"
	"github.com/dmitrijs2005/cabinetsync/internal/server/audit"
	"github.com/dmitrijs2005/cabinetsync/internal/server/auth"
	"github.com/dmitrijs2005/cabinetsync/internal/server/blobstore"
	sc "github.com/dmitrijs2005/cabinetsync/internal/server/config"
	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cabinetsync/internal/syncpkg"
)

// ShareRequest describes one share from the acting practitioner to
// TargetID. Permission defaults to read and TTL to the configured package
// TTL.
type ShareRequest struct {
	Payload        payload.Payload
	TargetID       string
	CabinetID      string
	PatientLocalID string
	Permission     models.Permission
	TTL            time.Duration
	IdempotencyKey string
}

type ShareResult struct {
	ID        string
	ExpiresAt time.Time
	// Reused is set when IdempotencyKey matched an earlier share.
	Reused bool
}

// SyncService runs the share, retrieve, list and revoke workflows. The
// acting practitioner is taken from the request context.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	vault       *KeyVault
	audit       *audit.Logger
	log         logging.Logger
	metrics     metrics.Reporter
	defaultTTL  time.Duration
	maxTTL      time.Duration

	engine  *envelope.Engine
	builder *syncpkg.Builder

	now        func() time.Time
	newBackOff func() backoff.BackOff
}

func NewSyncService(db *sql.DB, repomanager repomanager.RepositoryManager, blobs blobstore.Store, vault *KeyVault,
	auditLog *audit.Logger, log logging.Logger, m metrics.Reporter, config *sc.Config) *SyncService {

	s := &SyncService{
		db:          db,
		repomanager: repomanager,
		blobs:       blobs,
		vault:       vault,
		audit:       auditLog,
		log:         log,
		metrics:     m,
		defaultTTL:  config.PackageTTL,
		maxTTL:      config.MaxPackageTTL,
		now:         time.Now,
		newBackOff:  newCompensationBackOff,
	}

	clock := func() time.Time { return s.now() }
	s.engine = envelope.NewEngine()
	s.engine.Now = clock
	s.builder = syncpkg.NewBuilder(s.engine, clock)
	return s
}

func newCompensationBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 5 * time.Second
	return b
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrTransport, op, err)
}

// Share encrypts req.Payload for req.TargetID and persists it as a new sync
// package. Owner and target must both be active members of req.CabinetID.
func (s *SyncService) Share(ctx context.Context, req ShareRequest) (*ShareResult, error) {
	defer metrics.Time(s.metrics, metrics.OperationDurationMillis, map[string]string{"op": "share"}).Done()

	ownerID, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if req.Permission == "" {
		req.Permission = models.PermissionRead
	}
	if err := validateShare(ownerID, req, s.maxTTL); err != nil {
		return nil, err
	}

	if err := s.checkMembership(ctx, req.CabinetID, ownerID, req.TargetID); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		res, err := s.findIdempotent(ctx, ownerID, req)
		if err != nil || res != nil {
			return res, err
		}
	}

	key, err := s.vault.GetOrCreateActive(ctx, req.CabinetID)
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(key.Key)

	ttl := req.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}

	pkg, sessionKey, err := s.builder.Build(ctx, syncpkg.BuildRequest{
		Payload:        req.Payload,
		OwnerID:        ownerID,
		TargetID:       req.TargetID,
		CabinetID:      req.CabinetID,
		PatientLocalID: req.PatientLocalID,
		CabinetKey:     key.Key,
		TTL:            ttl,
	})
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(sessionKey)

	wrappedSession, err := wrapSessionKey(s.engine.Random(), key.Key, pkg.ID, pkg.TargetID, sessionKey)
	if err != nil {
		return nil, err
	}

	blob, err := pkg.Envelope.Marshal()
	if err != nil {
		return nil, err
	}

	// Nothing is persisted before the blob upload succeeds. From here on a
	// failure must remove the blob again.
	blobKey := blobstore.PackageKey(pkg.CabinetID, pkg.ID)
	if err := s.blobs.Put(ctx, blobKey, blob); err != nil {
		return nil, transportErr("upload blob", err)
	}

	row := &models.SyncPermission{
		ID:                pkg.ID,
		CabinetID:         pkg.CabinetID,
		PatientLocalHash:  pkg.Envelope.Metadata.PatientFingerprint,
		OwnerID:           ownerID,
		TargetID:          pkg.TargetID,
		Permission:        req.Permission,
		SyncType:          req.Payload.SyncType(),
		CabinetKeyHash:    key.KeyHash,
		KeyVersion:        key.Version,
		WrappedSessionKey: wrappedSession,
		IdempotencyKey:    req.IdempotencyKey,
		ExpiresAt:         pkg.ExpiresAt,
	}
	if err := s.repomanager.Permissions(s.db).Create(ctx, row); err != nil {
		s.deleteOrphan(ctx, pkg.ID, blobKey)

		// Lost an idempotency race against a concurrent identical share.
		if errors.Is(err, common.ErrAlreadyExists) && req.IdempotencyKey != "" {
			if res, ferr := s.findIdempotent(ctx, ownerID, req); ferr == nil && res != nil {
				return res, nil
			}
		}
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, fmt.Errorf("persist permission: %w", err)
		}
		return nil, transportErr("persist permission", err)
	}

	s.audit.Record(ctx, pkg.ID, models.AuditCreated, ownerID, map[string]string{
		"cabinet_id": pkg.CabinetID,
		"target_id":  pkg.TargetID,
		"permission": string(req.Permission),
		"sync_type":  string(row.SyncType),
		"expires_at": pkg.ExpiresAt.UTC().Format(time.RFC3339),
	})
	_ = s.metrics.Count(metrics.ShareCount, 1, map[string]string{"sync_type": string(row.SyncType)}, 1)
	s.log.Info(ctx, "package shared", "sync_id", pkg.ID, "cabinet_id", pkg.CabinetID,
		"owner_id", ownerID, "target_id", pkg.TargetID, "key_version", key.Version)

	return &ShareResult{ID: pkg.ID, ExpiresAt: pkg.ExpiresAt}, nil
}

func validateShare(ownerID string, req ShareRequest, maxTTL time.Duration) error {
	switch {
	case req.Payload == nil:
		return fmt.Errorf("%w: payload is required", common.ErrValidation)
	case !req.Payload.SyncType().Valid():
		return fmt.Errorf("%w: unknown sync type", common.ErrValidation)
	case req.CabinetID == "" || req.TargetID == "" || req.PatientLocalID == "":
		return fmt.Errorf("%w: cabinet, target and patient are required", common.ErrValidation)
	case req.TargetID == ownerID:
		return fmt.Errorf("%w: cannot share with yourself", common.ErrValidation)
	case !req.Permission.Valid():
		return fmt.Errorf("%w: unknown permission %q", common.ErrValidation, req.Permission)
	case req.TTL < 0:
		return fmt.Errorf("%w: negative ttl", common.ErrValidation)
	case maxTTL > 0 && req.TTL > maxTTL:
		return fmt.Errorf("%w: ttl %s exceeds maximum %s", common.ErrValidation, req.TTL, maxTTL)
	}
	return nil
}

func (s *SyncService) checkMembership(ctx context.Context, cabinetID, ownerID, targetID string) error {
	members, err := s.repomanager.Members(s.db).MembersOf(ctx, cabinetID)
	if err != nil {
		return transportErr("resolve members", err)
	}
	_, ownerOK := members[ownerID]
	_, targetOK := members[targetID]
	if !ownerOK || !targetOK {
		s.log.Warn(ctx, "cross-cabinet share rejected", "cabinet_id", cabinetID,
			"owner_id", ownerID, "target_id", targetID, "owner_member", ownerOK, "target_member", targetOK)
		return fmt.Errorf("%w: owner and target must belong to cabinet %s", common.ErrorUnauthorized, cabinetID)
	}
	return nil
}

// findIdempotent returns the earlier result for the owner's idempotency
// key, nil when the key is unused.
func (s *SyncService) findIdempotent(ctx context.Context, ownerID string, req ShareRequest) (*ShareResult, error) {
	p, err := s.repomanager.Permissions(s.db).FindByIdempotencyKey(ctx, ownerID, req.IdempotencyKey)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, transportErr("idempotency lookup", err)
	}

	if p.TargetID != req.TargetID || p.CabinetID != req.CabinetID ||
		p.PatientLocalHash != cryptox.PatientFingerprint(req.PatientLocalID, req.CabinetID) {
		return nil, fmt.Errorf("%w: idempotency key reused for a different share", common.ErrValidation)
	}
	if !p.IsActive || p.Expired(s.now()) {
		return nil, fmt.Errorf("%w: idempotency key belongs to a closed package", common.ErrValidation)
	}
	return &ShareResult{ID: p.ID, ExpiresAt: p.ExpiresAt, Reused: true}, nil
}

// deleteOrphan removes a blob whose permission row could not be written.
// It retries with backoff and only logs when it finally fails so the
// caller still sees the original error.
func (s *SyncService) deleteOrphan(ctx context.Context, syncID, blobKey string) {
	ctx = context.WithoutCancel(ctx)

	op := func() error { return s.blobs.Delete(ctx, blobKey) }
	notify := func(err error, next time.Duration) {
		s.log.Warn(ctx, "orphan blob delete retry", "sync_id", syncID, "next", next, "error", err)
	}

	if err := backoff.RetryNotify(op, s.newBackOff(), notify); err != nil {
		s.log.Error(ctx, "orphan blob delete failed", "sync_id", syncID, "blob_key", blobKey, "error", err)
		_ = s.metrics.Count(metrics.BlobCompensationFailure, 1, nil, 1)
		return
	}
	s.log.Info(ctx, "orphan blob deleted", "sync_id", syncID)
}

func wrapSessionKey(r io.Reader, cabinetKey []byte, packageID, targetID string, sessionKey []byte) ([]byte, error) {
	kek, err := cryptox.SessionWrappingKey(cabinetKey, packageID, targetID)
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(kek)
	return cryptox.WrapKey(r, kek, sessionKey)
}

func unwrapSessionKey(cabinetKey []byte, packageID, targetID string, wrapped []byte) ([]byte, error) {
	kek, err := cryptox.SessionWrappingKey(cabinetKey, packageID, targetID)
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(kek)
	return cryptox.UnwrapKey(kek, wrapped)
}

// Retrieve decrypts the package id addressed to the acting practitioner.
// Unknown packages and packages addressed to someone else are both
// reported as common.ErrorUnauthorized.
func (s *SyncService) Retrieve(ctx context.Context, id string) (payload.Payload, error) {
	defer metrics.Time(s.metrics, metrics.OperationDurationMillis, map[string]string{"op": "retrieve"}).Done()

	targetID, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: package id is required", common.ErrValidation)
	}

	perms := s.repomanager.Permissions(s.db)

	row, err := perms.GetActiveForTarget(ctx, id, targetID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorUnauthorized
	}
	if err != nil {
		return nil, transportErr("load permission", err)
	}

	now := s.now()
	if row.Expired(now) {
		s.audit.Record(ctx, row.ID, models.AuditExpired, targetID, map[string]string{
			"expires_at": row.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return nil, common.ErrExpired
	}

	p, err := s.open(ctx, row, now)
	if err != nil {
		if errors.Is(err, common.ErrIntegrity) {
			s.log.Error(ctx, "sync package integrity failure", "security_event", true,
				"sync_id", row.ID, "cabinet_id", row.CabinetID, "target_id", targetID, "error", err)
			_ = s.metrics.Count(metrics.IntegrityFailure, 1, map[string]string{"op": "retrieve"}, 1)
		}
		return nil, err
	}

	if err := perms.TouchLastSynced(ctx, row.ID, now); err != nil {
		return nil, transportErr("update last synced", err)
	}

	s.audit.Record(ctx, row.ID, models.AuditSynced, targetID, map[string]string{
		"sync_type": string(row.SyncType),
	})
	s.log.Info(ctx, "package retrieved", "sync_id", row.ID, "target_id", targetID)

	return p, nil
}

// open resolves the key version the package was sealed with, fetches the
// blob and decrypts it.
func (s *SyncService) open(ctx context.Context, row *models.SyncPermission, now time.Time) (payload.Payload, error) {
	key, err := s.vault.Get(ctx, row.CabinetID, row.KeyVersion)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: cabinet key v%d missing", common.ErrIntegrity, row.KeyVersion)
		}
		return nil, err
	}
	defer cryptox.Wipe(key.Key)

	if subtle.ConstantTimeCompare(key.KeyHash, row.CabinetKeyHash) != 1 {
		return nil, fmt.Errorf("%w: cabinet key hash differs from the one recorded at share time", common.ErrKeyMismatch)
	}

	blob, err := s.blobs.Get(ctx, blobstore.PackageKey(row.CabinetID, row.ID))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: blob missing", common.ErrIntegrity)
	}
	if err != nil {
		return nil, transportErr("download blob", err)
	}

	env, err := envelope.Unmarshal(blob)
	if err != nil {
		return nil, err
	}

	pkg := &syncpkg.SyncPackage{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		TargetID:  row.TargetID,
		CabinetID: row.CabinetID,
		Envelope:  env,
		ExpiresAt: row.ExpiresAt,
	}
	if !syncpkg.Validate(pkg, now) {
		return nil, fmt.Errorf("%w: malformed package", common.ErrIntegrity)
	}
	if env.Metadata.PatientFingerprint != row.PatientLocalHash || env.Metadata.SyncType != row.SyncType {
		return nil, fmt.Errorf("%w: envelope metadata does not match permission", common.ErrIntegrity)
	}

	sessionKey, err := unwrapSessionKey(key.Key, row.ID, row.TargetID, row.WrappedSessionKey)
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(sessionKey)

	return s.engine.Decrypt(env, key.Key, sessionKey)
}

// List returns the active, unexpired packages addressed to the acting
// practitioner, newest first.
func (s *SyncService) List(ctx context.Context) ([]*models.SyncPermission, error) {
	targetID, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.repomanager.Permissions(s.db).ListActiveForTarget(ctx, targetID, s.now())
	if err != nil {
		return nil, transportErr("list permissions", err)
	}
	return rows, nil
}

// Revoke deactivates package id. Only its owner may revoke; revoking twice
// succeeds. The blob is left in place.
func (s *SyncService) Revoke(ctx context.Context, id string) error {
	ownerID, err := auth.ActorFromContext(ctx)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: package id is required", common.ErrValidation)
	}

	err = s.repomanager.Permissions(s.db).Deactivate(ctx, id, ownerID)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorUnauthorized
	}
	if err != nil {
		return transportErr("revoke", err)
	}

	s.audit.Record(ctx, id, models.AuditRevoked, ownerID, nil)
	s.log.Info(ctx, "package revoked", "sync_id", id, "owner_id", ownerID)
	return nil
}

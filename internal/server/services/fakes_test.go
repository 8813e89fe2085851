package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/dmitrijs2005/cabinetsync/internal/dbx"
	"github.com/dmitrijs2005/cabinetsync/internal/logging"
	"github.com/dmitrijs2005/cabinetsync/internal/metrics"
	"github.com/dmitrijs2005/cabinetsync/internal/server/audit"
	"github.com/dmitrijs2005/cabinetsync/internal/server/auth"
	"github.com/dmitrijs2005/cabinetsync/internal/server/blobstore"
	"github.com/dmitrijs2005/cabinetsync/internal/server/config"
	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/auditentries"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/cabinetkeys"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/members"
	"github.com/dmitrijs2005/cabinetsync/internal/server/repositories/permissions"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// --- permissions ---

type fakePermsRepo struct {
	permissions.Repository

	mu        sync.Mutex
	rows      map[string]*models.SyncPermission
	seq       int
	createErr error
	touchErr  error
	creates   int
}

func newFakePermsRepo() *fakePermsRepo {
	return &fakePermsRepo{rows: map[string]*models.SyncPermission{}}
}

func (f *fakePermsRepo) Create(ctx context.Context, p *models.SyncPermission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if p.IdempotencyKey != "" {
		for _, r := range f.rows {
			if r.OwnerID == p.OwnerID && r.IdempotencyKey == p.IdempotencyKey {
				return common.ErrAlreadyExists
			}
		}
	}
	f.seq++
	cp := *p
	cp.IsActive = true
	cp.CreatedAt = time.Unix(int64(f.seq), 0)
	f.rows[p.ID] = &cp
	p.IsActive, p.CreatedAt = cp.IsActive, cp.CreatedAt
	return nil
}

func (f *fakePermsRepo) get(pred func(*models.SyncPermission) bool) (*models.SyncPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if pred(r) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakePermsRepo) GetByID(ctx context.Context, id string) (*models.SyncPermission, error) {
	return f.get(func(r *models.SyncPermission) bool { return r.ID == id })
}

func (f *fakePermsRepo) GetActiveForTarget(ctx context.Context, id, targetID string) (*models.SyncPermission, error) {
	return f.get(func(r *models.SyncPermission) bool { return r.ID == id && r.TargetID == targetID && r.IsActive })
}

func (f *fakePermsRepo) FindByIdempotencyKey(ctx context.Context, ownerID, key string) (*models.SyncPermission, error) {
	return f.get(func(r *models.SyncPermission) bool { return r.OwnerID == ownerID && r.IdempotencyKey == key })
}

func (f *fakePermsRepo) ListActiveForTarget(ctx context.Context, targetID string, now time.Time) ([]*models.SyncPermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SyncPermission
	for _, r := range f.rows {
		if r.TargetID == targetID && r.IsActive && r.ExpiresAt.After(now) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakePermsRepo) TouchLastSynced(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	r, ok := f.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.LastSyncedAt = &at
	return nil
}

func (f *fakePermsRepo) Deactivate(ctx context.Context, id, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	r.IsActive = false
	return nil
}

func (f *fakePermsRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// --- cabinet keys ---

type fakeKeysRepo struct {
	cabinetkeys.Repository

	mu        sync.Mutex
	keys      map[string][]*models.CabinetKey
	insertErr error
	inserts   int
}

func newFakeKeysRepo() *fakeKeysRepo {
	return &fakeKeysRepo{keys: map[string][]*models.CabinetKey{}}
}

func copyKey(k *models.CabinetKey) *models.CabinetKey {
	cp := *k
	cp.Key = nil
	return &cp
}

func (f *fakeKeysRepo) GetActive(ctx context.Context, cabinetID string) (*models.CabinetKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys[cabinetID] {
		if k.IsActive {
			return copyKey(k), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeKeysRepo) Get(ctx context.Context, cabinetID string, version int) (*models.CabinetKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys[cabinetID] {
		if k.Version == version {
			return copyKey(k), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeKeysRepo) LatestVersion(ctx context.Context, cabinetID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := 0
	for _, k := range f.keys[cabinetID] {
		if k.Version > v {
			v = k.Version
		}
	}
	return v, nil
}

func (f *fakeKeysRepo) Insert(ctx context.Context, k *models.CabinetKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, cur := range f.keys[k.CabinetID] {
		if cur.IsActive || cur.Version == k.Version {
			return common.ErrAlreadyExists
		}
	}
	k.IsActive = true
	f.keys[k.CabinetID] = append(f.keys[k.CabinetID], copyKey(k))
	return nil
}

func (f *fakeKeysRepo) Deactivate(ctx context.Context, cabinetID string, version int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys[cabinetID] {
		if k.Version == version {
			k.IsActive = false
			return nil
		}
	}
	return common.ErrorNotFound
}

// --- members ---

type fakeMembersRepo struct {
	members.Repository
	cabinets map[string]map[string]struct{}
	err      error
}

func (f *fakeMembersRepo) MembersOf(ctx context.Context, cabinetID string) (map[string]struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]struct{}{}
	for id := range f.cabinets[cabinetID] {
		out[id] = struct{}{}
	}
	return out, nil
}

// --- audit ---

type fakeAuditRepo struct {
	auditentries.Repository
	mu      sync.Mutex
	entries []*models.SyncAuditEntry
	err     error
}

func (f *fakeAuditRepo) Append(ctx context.Context, e *models.SyncAuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAuditRepo) actions(syncID string) []models.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditAction
	for _, e := range f.entries {
		if e.SyncID == syncID {
			out = append(out, e.Action)
		}
	}
	return out
}

func (f *fakeAuditRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// --- repo manager ---

type fakeRepoManager struct {
	perms   *fakePermsRepo
	keys    *fakeKeysRepo
	members *fakeMembersRepo
	audit   *fakeAuditRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error   { return nil }
func (m *fakeRepoManager) Permissions(db dbx.DBTX) permissions.Repository { return m.perms }
func (m *fakeRepoManager) Audit(db dbx.DBTX) auditentries.Repository      { return m.audit }
func (m *fakeRepoManager) CabinetKeys(db dbx.DBTX) cabinetkeys.Repository { return m.keys }
func (m *fakeRepoManager) Members(db dbx.DBTX) members.Repository         { return m.members }

// --- blobs ---

type fakeBlobStore struct {
	*blobstore.Memory

	mu             sync.Mutex
	puts, gets     int
	deletes        int
	putErr, getErr error
	// failDeletes makes the first n deletes fail.
	failDeletes int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{Memory: blobstore.NewMemory()}
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	f.puts++
	err := f.putErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Memory.Put(ctx, key, data)
}

func (f *fakeBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	f.gets++
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Memory.Get(ctx, key)
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	f.deletes++
	fail := f.failDeletes > 0
	if fail {
		f.failDeletes--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("blob store unavailable")
	}
	return f.Memory.Delete(ctx, key)
}

// --- wiring ---

const (
	cabinetC = "cab-C"
	cabinetD = "cab-D"
	ownerO   = "dr-O"
	targetT  = "dr-T"
	outsider = "dr-X"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc     *SyncService
	vault   *KeyVault
	rm      *fakeRepoManager
	blobs   *fakeBlobStore
	metrics *metrics.Recorder
	clock   *fakeClock
}

var testMasterKey = []byte("0123456789abcdef0123456789abcdef")

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		perms: newFakePermsRepo(),
		keys:  newFakeKeysRepo(),
		members: &fakeMembersRepo{cabinets: map[string]map[string]struct{}{
			cabinetC: {ownerO: {}, targetT: {}},
			cabinetD: {outsider: {}},
		}},
		audit: &fakeAuditRepo{},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newSQLiteDB(t)
	rm := newFakeRepoManager()
	blobs := newFakeBlobStore()
	rec := metrics.NewRecorder()
	clock := &fakeClock{t: baseTime}

	cfg := &config.Config{}
	cfg.LoadDefaults()

	vault := NewKeyVault(db, rm, testMasterKey, logging.Nop())
	auditLog := audit.NewLogger(rm.audit, logging.Nop(), rec)
	svc := NewSyncService(db, rm, blobs, vault, auditLog, logging.Nop(), rec, cfg)
	svc.now = clock.Now
	svc.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	return &testEnv{svc: svc, vault: vault, rm: rm, blobs: blobs, metrics: rec, clock: clock}
}

func as(userID string) context.Context {
	return auth.WithActor(context.Background(), userID)
}

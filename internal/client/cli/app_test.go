package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/client/client"
	"github.com/dmitrijs2005/cabinetsync/internal/client/config"
	"github.com/dmitrijs2005/cabinetsync/internal/payload"
	"github.com/dmitrijs2005/cabinetsync/internal/server/auth"
	"github.com/dmitrijs2005/cabinetsync/internal/syncapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	token    string
	shared   *client.ShareInput
	revoked  string
	pkgs     []syncapi.PackageInfo
	payload  payload.Payload
	shareRes *syncapi.ShareResponse
	err      error
	closed   bool
}

func (f *fakeClient) Ping(context.Context) error { return f.err }

func (f *fakeClient) Share(_ context.Context, in client.ShareInput) (*syncapi.ShareResponse, error) {
	f.shared = &in
	return f.shareRes, f.err
}

func (f *fakeClient) Retrieve(context.Context, string) (payload.Payload, error) {
	return f.payload, f.err
}

func (f *fakeClient) List(context.Context) ([]syncapi.PackageInfo, error) { return f.pkgs, f.err }

func (f *fakeClient) Revoke(_ context.Context, id string) error {
	f.revoked = id
	return f.err
}

func (f *fakeClient) SetAccessToken(token string) { f.token = token }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func testApp(f *fakeClient, stdin string) (*App, *bytes.Buffer) {
	out := &bytes.Buffer{}
	cfg := &config.Config{AccessToken: "tok", Timeout: time.Second}
	return newApp(cfg, f, strings.NewReader(stdin), out), out
}

func TestSplitArgs(t *testing.T) {
	global, cmd, rest, err := SplitArgs([]string{"-a", "host:1", "-t", "x", "share", "-to", "T"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-a", "host:1", "-t", "x"}, global)
	assert.Equal(t, "share", cmd)
	assert.Equal(t, []string{"-to", "T"}, rest)

	_, cmd, _, err = SplitArgs(nil)
	require.NoError(t, err)
	assert.Empty(t, cmd)

	_, _, _, err = SplitArgs([]string{"-bogus"})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestExecute_Share(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	raw, err := payload.Marshal(&payload.Patient{FirstName: "Ann"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	f := &fakeClient{shareRes: &syncapi.ShareResponse{ID: "s-1", ExpiresAt: time.Now().Add(time.Hour)}}
	app, out := testApp(f, "")

	err = app.Execute(context.Background(), "share", []string{
		"-cabinet", "C", "-to", "T", "-patient", "p-42", "-file", path, "-ttl", "2h", "-key", "k1",
	})
	require.NoError(t, err)

	require.NotNil(t, f.shared)
	assert.Equal(t, "C", f.shared.CabinetID)
	assert.Equal(t, "read", f.shared.Permission)
	assert.Equal(t, 2*time.Hour, f.shared.TTL)
	assert.Equal(t, "k1", f.shared.IdempotencyKey)
	assert.Equal(t, payload.SyncTypePatient, f.shared.Payload.SyncType())
	assert.Contains(t, out.String(), "Shared: s-1")
}

func TestExecute_ShareFromStdinReused(t *testing.T) {
	raw, err := payload.Marshal(&payload.Consultation{Motive: "checkup"})
	require.NoError(t, err)

	f := &fakeClient{shareRes: &syncapi.ShareResponse{ID: "s-1", Reused: true}}
	app, out := testApp(f, string(raw))

	err = app.Execute(context.Background(), "share", []string{"-cabinet", "C", "-to", "T", "-patient", "p", "-file", "-"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Already shared")
}

func TestExecute_ShareUsage(t *testing.T) {
	f := &fakeClient{}
	app, _ := testApp(f, "")

	err := app.Execute(context.Background(), "share", []string{"-cabinet", "C"})
	assert.ErrorIs(t, err, ErrUsage)
	assert.Nil(t, f.shared)
}

func TestExecute_RetrievePrintsJSON(t *testing.T) {
	f := &fakeClient{payload: &payload.Patient{FirstName: "Ann"}}
	app, out := testApp(f, "")

	require.NoError(t, app.Execute(context.Background(), "retrieve", []string{"x"}))
	assert.Contains(t, out.String(), `"type": "patient"`)
	assert.Contains(t, out.String(), `"first_name": "Ann"`)

	assert.ErrorIs(t, app.Execute(context.Background(), "retrieve", nil), ErrUsage)
}

func TestExecute_List(t *testing.T) {
	synced := time.Now()
	f := &fakeClient{pkgs: []syncapi.PackageInfo{
		{ID: "a", SyncType: "invoice", OwnerID: "O", CabinetID: "C", Permission: "read", LastSyncedAt: &synced},
		{ID: "b", SyncType: "patient", OwnerID: "O", CabinetID: "C", Permission: "full"},
	}}
	app, out := testApp(f, "")

	require.NoError(t, app.Execute(context.Background(), "list", nil))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "a "))
	assert.True(t, strings.HasSuffix(lines[2], "-"))
}

func TestExecute_ListEmpty(t *testing.T) {
	app, out := testApp(&fakeClient{}, "")
	require.NoError(t, app.Execute(context.Background(), "ls", nil))
	assert.Contains(t, out.String(), "Nothing shared")
}

func TestExecute_Revoke(t *testing.T) {
	f := &fakeClient{}
	app, out := testApp(f, "n\n")

	require.NoError(t, app.Execute(context.Background(), "revoke", []string{"r-1"}))
	assert.Empty(t, f.revoked)
	assert.Contains(t, out.String(), "Cancelled")

	app, _ = testApp(f, "y\n")
	require.NoError(t, app.Execute(context.Background(), "revoke", []string{"r-1"}))
	assert.Equal(t, "r-1", f.revoked)

	f.revoked = ""
	app, _ = testApp(f, "")
	require.NoError(t, app.Execute(context.Background(), "revoke", []string{"-y", "r-2"}))
	assert.Equal(t, "r-2", f.revoked)
}

func TestExecute_PromptsForToken(t *testing.T) {
	f := &fakeClient{}
	app, _ := testApp(f, "")
	app.config.AccessToken = ""
	app.readToken = func(io.Writer) (string, error) { return "prompted", nil }

	require.NoError(t, app.Execute(context.Background(), "list", nil))
	assert.Equal(t, "prompted", f.token)

	f = &fakeClient{}
	app, _ = testApp(f, "")
	app.config.AccessToken = ""
	app.readToken = func(io.Writer) (string, error) { return "", nil }
	assert.ErrorIs(t, app.Execute(context.Background(), "list", nil), client.ErrUnauthenticated)
}

func TestExecute_PingSkipsToken(t *testing.T) {
	f := &fakeClient{}
	app, out := testApp(f, "")
	app.config.AccessToken = ""
	app.readToken = func(io.Writer) (string, error) { return "", errors.New("should not prompt") }

	require.NoError(t, app.Execute(context.Background(), "ping", nil))
	assert.Equal(t, "OK\n", out.String())
}

func TestExecute_Token(t *testing.T) {
	app, out := testApp(&fakeClient{}, "")

	require.NoError(t, app.Execute(context.Background(), "token", []string{"-u", "dr-1", "-s", "secret"}))
	uid, err := auth.GetUserIDFromToken(strings.TrimSpace(out.String()), []byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, "dr-1", uid)

	assert.ErrorIs(t, app.Execute(context.Background(), "token", []string{"-u", "dr-1"}), ErrUsage)
}

func TestExecute_Unknown(t *testing.T) {
	app, out := testApp(&fakeClient{}, "")
	assert.ErrorIs(t, app.Execute(context.Background(), "frobnicate", nil), ErrUsage)
	assert.Contains(t, out.String(), "usage: syncctl")
}

func TestExecute_PropagatesClientError(t *testing.T) {
	f := &fakeClient{err: client.ErrExpired}
	app, _ := testApp(f, "")
	assert.ErrorIs(t, app.Execute(context.Background(), "retrieve", []string{"x"}), client.ErrExpired)
}

func TestClose(t *testing.T) {
	f := &fakeClient{}
	app, _ := testApp(f, "")
	require.NoError(t, app.Close())
	assert.True(t, f.closed)
}

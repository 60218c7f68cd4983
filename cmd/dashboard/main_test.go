package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/go-dashboard-client/api"
	"github.com/jrsteele09/go-dashboard-client/credentials"
	"github.com/jrsteele09/go-dashboard-client/internal/fakeapi"
	"github.com/jrsteele09/go-dashboard-client/storage/filestore"
	"github.com/stretchr/testify/require"
)

const externalToken = "cli-session"

// setupProfile points the CLI at a fresh profile directory and a fake backend,
// with the profile already holding a verified credential.
func setupProfile(t *testing.T) (*fakeapi.Server, string) {
	t.Helper()
	backend := fakeapi.New()
	t.Cleanup(backend.Close)
	backend.AddIdentity(externalToken, fakeapi.Identity{ID: "user-1", Email: "jane@example.com", Name: "Jane"})
	_, err := api.New(backend.URL, nil).Auth.Verify(context.Background(), externalToken)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "profile")
	store, err := filestore.New(dir)
	require.NoError(t, err)
	creds, err := credentials.New(store)
	require.NoError(t, err)
	creds.Save(fakeapi.AccessTokenFor(externalToken), "refresh")

	t.Setenv("DASHBOARD_PROFILE_DIR", dir)
	t.Setenv("DASHBOARD_API_BASE_URL", backend.URL)
	t.Setenv("DASHBOARD_LOG_LEVEL", "error")
	t.Setenv("DASHBOARD_OIDC_ISSUER", "")
	return backend, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestWhoami_UsesStoredCredential(t *testing.T) {
	setupProfile(t)

	out, err := execute(t, "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "Jane <jane@example.com>")
	require.Contains(t, out, "user-1")
}

func TestLogin_RequiresIdentityProvider(t *testing.T) {
	setupProfile(t)

	_, err := execute(t, "login", "--email", "jane@example.com", "--password", "Secret123")
	require.ErrorContains(t, err, "DASHBOARD_OIDC_ISSUER")
}

func TestCalc_SaveListSyncDelete(t *testing.T) {
	backend, _ := setupProfile(t)

	out, err := execute(t, "calc", "save", "--company", "Acme", "--input", `{"scope1": 10}`)
	require.NoError(t, err)
	require.Contains(t, out, "Saved ")
	require.Len(t, backend.Calculations("user-1"), 1)

	backend.SetCreatesDown(true)
	out, err = execute(t, "calc", "save", "--company", "Offline Co", "--result", `{"total_emissions": 2}`)
	require.NoError(t, err)
	require.Contains(t, out, "Saved locally as ")
	localID := strings.Fields(strings.TrimPrefix(out, "Saved locally as "))[0]
	localID = strings.TrimSuffix(localID, ",")

	out, err = execute(t, "calc", "list", "--offline")
	require.NoError(t, err)
	require.Contains(t, out, "Offline Co")
	require.Contains(t, out, "pending")
	require.Contains(t, out, "Acme")

	out, err = execute(t, "calc", "sync")
	require.NoError(t, err)
	require.Contains(t, out, "Migrated 0, 1 still pending")

	backend.SetCreatesDown(false)
	out, err = execute(t, "calc", "sync")
	require.NoError(t, err)
	require.Contains(t, out, "Migrated 1, 0 still pending")
	require.Len(t, backend.Calculations("user-1"), 2)

	id := backend.Calculations("user-1")[0].ID
	out, err = execute(t, "calc", "delete", id)
	require.NoError(t, err)
	require.Contains(t, out, "Deleted "+id)
	require.Len(t, backend.Calculations("user-1"), 1)

	_, err = execute(t, "calc", "delete", localID)
	require.ErrorContains(t, err, "no calculation")
}

func TestAccountCommands(t *testing.T) {
	setupProfile(t)

	t.Run("notifications", func(t *testing.T) {
		out, err := execute(t, "notifications")
		require.NoError(t, err)
		require.Contains(t, out, "Welcome")
		require.Contains(t, out, "Quota")
	})

	t.Run("stats", func(t *testing.T) {
		out, err := execute(t, "stats")
		require.NoError(t, err)
		require.Contains(t, out, "Requests total:      12")
	})

	t.Run("rate limits", func(t *testing.T) {
		out, err := execute(t, "ratelimits")
		require.NoError(t, err)
		require.Contains(t, out, "1000")
		require.Contains(t, out, "sk_test")
	})
}

func TestConfigErrors(t *testing.T) {
	setupProfile(t)
	t.Setenv("DASHBOARD_STORAGE", "s3")

	_, err := execute(t, "whoami")
	require.ErrorContains(t, err, "unknown storage backend")
}

func TestReadJSONObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"company": "Acme"}`), 0o600))

	tests := []struct {
		name    string
		arg     string
		want    map[string]any
		wantErr bool
	}{
		{name: "inline", arg: `{"a": 1}`, want: map[string]any{"a": float64(1)}},
		{name: "from file", arg: "@" + path, want: map[string]any{"company": "Acme"}},
		{name: "null", arg: "null", want: map[string]any{}},
		{name: "not an object", arg: "[1]", wantErr: true},
		{name: "missing file", arg: "@" + path + ".absent", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readJSONObject(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

package cli

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/homeconnect/pkg/homeconnect"
)

func TestAuthStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := newAuthStore(filepath.Join(t.TempDir(), "cache", "auth.yaml"))

	auth := map[string]homeconnect.AuthState{
		"client-1": {
			RefreshToken:  "refresh",
			AccessToken:   "access",
			AccessExpires: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
			Scopes:        []string{"Monitor", "Control"},
		},
	}
	require.NoError(t, store.Save(auth))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, auth, loaded)
}

func TestAuthStoreLoadMissingFile(t *testing.T) {
	t.Parallel()

	store := newAuthStore(filepath.Join(t.TempDir(), "auth.yaml"))
	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Empty(t, loaded)
}

func TestAuthStoreFilePermissions(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}

	path := filepath.Join(t.TempDir(), "auth.yaml")
	store := newAuthStore(path)
	require.NoError(t, store.Save(map[string]homeconnect.AuthState{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAuthStoreSaveOverwrites(t *testing.T) {
	t.Parallel()

	store := newAuthStore(filepath.Join(t.TempDir(), "auth.yaml"))
	require.NoError(t, store.Save(map[string]homeconnect.AuthState{
		"client-1": {RefreshToken: "old"},
	}))
	require.NoError(t, store.Save(map[string]homeconnect.AuthState{
		"client-1": {RefreshToken: "new"},
	}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "new", loaded["client-1"].RefreshToken)
}

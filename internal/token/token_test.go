package token

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndGet(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save("tok-abc"))
	got, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", got)

	// Save replaces the previous token.
	require.NoError(t, store.Save("tok-new"))
	got, err = store.Get()
	require.NoError(t, err)
	assert.Equal(t, "tok-new", got)
}

func TestStore_GetWithoutSave(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Get()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestStore_GetTrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "token"), []byte("tok-abc\n"), 0o600))

	store := NewStore(dir)
	got, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", got)
}

func TestStore_Delete(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save("tok-abc"))

	require.NoError(t, store.Delete())
	_, err := store.Get()
	assert.ErrorIs(t, err, ErrNoToken)

	// Deleting again is fine.
	require.NoError(t, store.Delete())
}

func TestStore_SaveCreatesMissingDirAndRestrictsPerms(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	store := NewStore(dir)
	require.NoError(t, store.Save("tok-abc"))

	info, err := os.Stat(filepath.Join(dir, "token"))
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

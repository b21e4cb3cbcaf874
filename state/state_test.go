package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestStateOperations(t *testing.T) {
	dir := chdirTemp(t)

	t.Run("Load empty state", func(t *testing.T) {
		state, err := Load()
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Empty(t, state)
	})

	t.Run("Set and Get string value", func(t *testing.T) {
		require.NoError(t, Set("test.key", "test-value"))
		got, err := GetString("test.key")
		require.NoError(t, err)
		assert.Equal(t, "test-value", got)
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		got, ok, err := Get("non.existent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("GetString of non-string value", func(t *testing.T) {
		require.NoError(t, Set("test.count", 42))
		got, err := GetString("test.count")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Delete key", func(t *testing.T) {
		require.NoError(t, Set("test.delete", "gone"))
		require.NoError(t, Delete("test.delete"))
		_, ok, err := Get("test.delete")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("State file location", func(t *testing.T) {
		assert.FileExists(t, filepath.Join(dir, ".wastenet", "state.yml"))
	})
}

func TestDefaultBin(t *testing.T) {
	chdirTemp(t)

	got, err := DefaultBin()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, SetDefaultBin("BIN-002"))
	got, err = DefaultBin()
	require.NoError(t, err)
	assert.Equal(t, "BIN-002", got)

	require.NoError(t, SetDefaultBin(""))
	got, err = DefaultBin()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCorruptStateFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".wastenet"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".wastenet", "state.yml"), []byte("- a\n- b\n"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

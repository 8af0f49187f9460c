package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteBytes_WritesFileContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.json")

	err := AtomicWriteBytes(path, []byte(`{"a":1}`), 0o644)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestAtomicWriteBytes_OverwritesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.json")

	require.NoError(t, AtomicWriteBytes(path, []byte("first"), 0o644))
	require.NoError(t, AtomicWriteBytes(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestAtomicWriteBytes_LeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.json")

	require.NoError(t, AtomicWriteBytes(path, []byte("x"), 0o644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file.json", entries[0].Name())
}

func TestExists_TrueForPresentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.json")
	require.NoError(t, AtomicWriteBytes(path, []byte("x"), 0o644))

	assert.True(t, Exists(path))
}

func TestExists_FalseForAbsentFile(t *testing.T) {
	assert.False(t, Exists(filepath.Join(t.TempDir(), "missing.json")))
}

package xfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "a", "b", "data.db")

	require.NoError(t, EnsureDir(file))

	info, err := os.Stat(filepath.Dir(file))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(DefaultDirPerm), info.Mode().Perm())
}

func TestEnsureDirExisting(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, EnsureDir(filepath.Join(base, "f")))
	require.NoError(t, EnsureDir(filepath.Join(base, "f")))
}

func TestEnsureDirRejectsBadInput(t *testing.T) {
	assert.ErrorIs(t, EnsureDir(""), ErrEmptyPath)
	assert.ErrorIs(t, EnsureDir("a\x00b/c"), ErrNullByte)
	assert.ErrorIs(t, EnsureDirWithPerm("a/b", 0o600), ErrInvalidPerm)
}

func TestEnsureDirCurrentDir(t *testing.T) {
	// 没有目录部分时无事可做。
	require.NoError(t, EnsureDir("data.db"))
}

func TestWriteAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")

	require.NoError(t, WriteAtomic(path, []byte("v1"), 0o600))
	require.NoError(t, WriteAtomic(path, []byte("v2"), 0o600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.db")
	require.NoError(t, WriteAtomic(path, []byte("data"), 0o600))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "vault.db", entries[0].Name())
}

func TestWriteAtomicEmptyPath(t *testing.T) {
	assert.ErrorIs(t, WriteAtomic("", nil, 0o600), ErrEmptyPath)
}

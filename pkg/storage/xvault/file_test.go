package xvault

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.bin")
	s, err := NewFileStore(path, []byte("test-secret"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestNewFileStore_Validation(t *testing.T) {
	_, err := NewFileStore("", []byte("secret"))
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = NewFileStore("/tmp/x", nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, path := newTestFileStore(t)

	require.NoError(t, s.Set(ctx, "session/current", []byte(`{"token":"secret-token"}`)))
	require.NoError(t, s.Set(ctx, "pin/media.example.com", []byte("abc123")))

	got, err := s.Get(ctx, "session/current")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"token":"secret-token"}`), got)

	// 重新打开：数据应从磁盘恢复
	require.NoError(t, s.Close())
	s2, err := NewFileStore(path, []byte("test-secret"))
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err = s2.Get(ctx, "pin/media.example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc123"), got)
}

func TestFileStore_CiphertextOnDisk(t *testing.T) {
	ctx := context.Background()
	s, path := newTestFileStore(t)

	token := []byte("very-secret-access-token")
	require.NoError(t, s.Set(ctx, "session/current", token))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, token), "token must never appear in plaintext on disk")
	assert.True(t, bytes.HasPrefix(raw, []byte(fileMagic)))
}

func TestFileStore_WrongSecret(t *testing.T) {
	ctx := context.Background()
	s, path := newTestFileStore(t)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s2, err := NewFileStore(path, []byte("wrong-secret"))
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	_, err = s2.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestFileStore_CorruptedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a vault file"), 0o600))

	s, err := NewFileStore(path, []byte("secret"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestFileStore(t)

	_, err := s.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestFileStore(t)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// 删除不存在的键静默成功
	assert.NoError(t, s.Delete(ctx, "absent"))
}

func TestFileStore_KeysPrefix(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestFileStore(t)

	require.NoError(t, s.Set(ctx, "pin/a.example.com", []byte("1")))
	require.NoError(t, s.Set(ctx, "pin/b.example.com", []byte("2")))
	require.NoError(t, s.Set(ctx, "session/current", []byte("3")))

	keys, err := s.Keys(ctx, "pin/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pin/a.example.com", "pin/b.example.com"}, keys)
}

func TestFileStore_Closed(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestFileStore(t)
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Set(ctx, "k", nil), ErrStoreClosed)
	assert.ErrorIs(t, s.Delete(ctx, "k"), ErrStoreClosed)
	_, err = s.Keys(ctx, "")
	assert.ErrorIs(t, err, ErrStoreClosed)

	// 重复 Close 无害
	assert.NoError(t, s.Close())
}

func TestFileStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestFileStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "k" + string(rune('a'+n))
			_ = s.Set(ctx, key, []byte{byte(n)})
			_, _ = s.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 8)
}

package xvault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Basic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_ValueIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	v := []byte("original")
	require.NoError(t, s.Set(ctx, "k", v))
	v[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got, "store must copy values on Set")

	got[0] = 'Y'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again, "store must copy values on Get")
}

func TestMemoryStore_EmptyKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	_, err := s.Get(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.ErrorIs(t, s.Set(ctx, "", nil), ErrEmptyKey)
	assert.ErrorIs(t, s.Delete(ctx, ""), ErrEmptyKey)
}

func TestMemoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.NoError(t, s.Close())
}

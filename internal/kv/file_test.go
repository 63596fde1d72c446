package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PutGetDelete(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Get(ctx, "b", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "b", "k1", []byte(`{"n":1}`)))
	got, err := s.Get(ctx, "b", "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"n":1}`), got)

	require.NoError(t, s.Put(ctx, "b", "k1", []byte(`{"n":2}`)))
	got, err = s.Get(ctx, "b", "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"n":2}`), got)

	require.NoError(t, s.Delete(ctx, "b", "k1"))
	_, err = s.Get(ctx, "b", "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_List(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	rows, err := s.List(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, s.Put(ctx, "b", "a", []byte(`1`)))
	require.NoError(t, s.Put(ctx, "b", "c", []byte(`2`)))
	require.NoError(t, s.Put(ctx, "other", "a", []byte(`3`)))

	rows, err = s.List(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "buckets are isolated")
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "b", "k1", []byte(`"v"`)))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := s2.Get(ctx, "b", "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"v"`), got)
}

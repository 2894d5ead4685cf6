package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWInsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimension: 3})
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, "a", []float32{1, 0, 0}))
	require.NoError(t, s.Insert(ctx, "b", []float32{0, 1, 0}))
	require.NoError(t, s.Insert(ctx, "c", []float32{0.9, 0.1, 0}))

	results, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
}

func TestHNSWDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimension: 3})
	require.NoError(t, err)

	err = s.Insert(ctx, "a", []float32{1, 0})
	require.Error(t, err)
	var dm DimensionMismatchError
	assert.ErrorAs(t, err, &dm)
}

func TestHNSWDeleteTombstonesNotReturned(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimension: 2})
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, "a", []float32{1, 0}))
	require.NoError(t, s.Insert(ctx, "b", []float32{0, 1}))
	require.NoError(t, s.Delete(ctx, "a"))

	assert.Equal(t, 1, s.Size())
	results, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}

func TestHNSWSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.bin")

	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, "a", []float32{1, 0}))
	require.NoError(t, s.Insert(ctx, "b", []float32{0, 1}))
	require.NoError(t, s.Save(path))

	loaded, err := NewHNSWVectorStore(VectorStoreConfig{Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Size())

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestHNSWClear(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, "a", []float32{1, 0}))
	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Size())

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHNSWGetReturnsOriginalUnnormalizedVector(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimension: 3})
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, "a", []float32{2, 0, 0}))
	vec, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{2, 0, 0}, vec)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHNSWGetAfterDeleteIsAbsent(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimension: 2})
	require.NoError(t, err)

	require.NoError(t, s.Insert(ctx, "a", []float32{1, 0}))
	require.NoError(t, s.Delete(ctx, "a"))

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHNSWSaveLoadPreservesGet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.bin")

	s, err := NewHNSWVectorStore(VectorStoreConfig{Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, "a", []float32{3, 4}))
	require.NoError(t, s.Save(path))

	loaded, err := NewHNSWVectorStore(VectorStoreConfig{Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))

	vec, ok, err := loaded.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, vec)
}

package vectorstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klee-ai/internal/apperr"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)

	exists, err := store.CollectionExists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.EnsureCollection(ctx, "s1", 2))
	exists, err = store.CollectionExists(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.FileExists(t, filepath.Join(root, "s1", LocalFileName))

	require.NoError(t, store.Upsert(ctx, "s1", []Point{
		{ID: "a", Vec: []float32{1, 0}, Meta: map[string]any{"kind": "x"}},
		{ID: "b", Vec: []float32{0, 1}, Meta: map[string]any{"kind": "y"}},
		{ID: "c", Vec: []float32{1, 1}, Meta: map[string]any{"kind": "x"}},
	}))

	results, err := store.Search(ctx, "s1", []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].PointID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "c", results[1].PointID)

	results, err = store.Search(ctx, "s1", []float32{0, 1}, 10, map[string]any{"kind": "x"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].PointID)

	require.NoError(t, store.Delete(ctx, "s1", []string{"c"}))

	// A fresh store reads what the first one persisted.
	reopened := NewLocalStore(root)
	results, err = reopened.Search(ctx, "s1", []float32{1, 1}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].PointID)
	assert.Equal(t, "b", results[1].PointID, "equal scores tie-break by id")

	require.NoError(t, reopened.DeleteCollection(ctx, "s1"))
	exists, err = reopened.CollectionExists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, reopened.DeleteCollection(ctx, "s1"))
}

func TestLocalStore_Errors(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)

	_, err := store.Search(ctx, "missing", []float32{1}, 1, nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = store.Search(ctx, "missing", []float32{1}, 0, nil)
	assert.Error(t, err)

	require.NoError(t, store.EnsureCollection(ctx, "s1", 2))
	assert.Error(t, store.EnsureCollection(ctx, "s1", 3), "vector size mismatch")
	assert.Error(t, store.Upsert(ctx, "s1", []Point{{ID: "a", Vec: []float32{1, 2, 3}}}))

	path := filepath.Join(root, "broken", LocalFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = store.Search(ctx, "broken", []float32{1, 0}, 1, nil)
	assert.True(t, errors.Is(err, apperr.ErrPersistence))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Equal(t, float32(0), Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, float32(0), Cosine([]float32{1}, []float32{1, 1}))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

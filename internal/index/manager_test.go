package index

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencoderank/coderank/internal/store"
)

type countingEmbedder struct {
	calls int
	dim   int
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, c.dim)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func newTestManager(t *testing.T) (*Manager, *countingEmbedder) {
	t.Helper()
	dir := t.TempDir()
	chunks, err := store.NewSQLiteChunkStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = chunks.Close() })

	vectors, err := store.NewHNSWVectorStore(store.VectorStoreConfig{Dimension: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	embedder := &countingEmbedder{dim: 4}
	return New(dir, chunks, vectors, embedder, 2), embedder
}

func sampleNewChunk(path, id, content string) store.Chunk {
	return store.Chunk{
		ID:          id,
		Path:        path,
		Content:     content,
		StartLine:   1,
		EndLine:     2,
		Kind:        store.KindFunction,
		ContentHash: contentHashOf(content),
		Language:    "go",
	}
}

func contentHashOf(content string) string {
	return HashFile([]byte(content))
}

func TestReindexInsertsNewChunksAndEmbeds(t *testing.T) {
	m, embedder := newTestManager(t)
	ctx := context.Background()

	c := sampleNewChunk("a.go", "id1", "func A() {}")
	require.NoError(t, m.Reindex(ctx, "a.go", "filehash1", []store.Chunk{c}))

	assert.Equal(t, 1, embedder.calls)
	got, err := m.chunks.GetByPath(ctx, "a.go")
	require.NoError(t, err)
	require.Len(t, got, 1)

	rec, err := m.chunks.GetFileHash(ctx, "a.go")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "filehash1", rec.Hash)
}

func TestReindexReusesVectorForUnchangedContent(t *testing.T) {
	m, embedder := newTestManager(t)
	ctx := context.Background()

	content := "func Stable() {}"
	c1 := sampleNewChunk("a.go", "id1", content)
	require.NoError(t, m.Reindex(ctx, "a.go", "filehash1", []store.Chunk{c1}))
	assert.Equal(t, 1, embedder.calls)

	// Same content, new path and new chunk id: the vector should be
	// migrated by content hash, not re-embedded.
	c2 := sampleNewChunk("b.go", "id2", content)
	require.NoError(t, m.Reindex(ctx, "b.go", "filehash2", []store.Chunk{c2}))
	assert.Equal(t, 1, embedder.calls, "unchanged content must not trigger a second embed call")

	vec, ok, err := m.vectors.Get(ctx, "id2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, vec)
}

func TestReindexDeletesStaleChunks(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	c1 := sampleNewChunk("a.go", "id1", "func A() {}")
	c2 := sampleNewChunk("a.go", "id2", "func B() {}")
	require.NoError(t, m.Reindex(ctx, "a.go", "fh1", []store.Chunk{c1, c2}))

	// Reindex with only one of the two chunks; the other should be deleted.
	require.NoError(t, m.Reindex(ctx, "a.go", "fh2", []store.Chunk{c1}))

	got, err := m.chunks.GetByPath(ctx, "a.go")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "id1", got[0].ID)
}

func TestRecordIndexedSetsFileHashWithoutChunks(t *testing.T) {
	m, embedder := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.RecordIndexed(ctx, "empty.go", "fh"))
	assert.Equal(t, 0, embedder.calls)

	rec, err := m.chunks.GetFileHash(ctx, "empty.go")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, m.Statistics().SkippedFiles)
}

func TestConsistencyCheckDetectsOrphanVector(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.vectors.Insert(ctx, "orphan", []float32{1, 0, 0, 0}))

	err := m.ConsistencyCheck(ctx, []string{"orphan"})
	assert.Error(t, err)
}

func TestAcquireAndReleaseExclusiveLock(t *testing.T) {
	dir := t.TempDir()
	chunks, err := store.NewSQLiteChunkStore("")
	require.NoError(t, err)
	defer chunks.Close()
	vectors, err := store.NewHNSWVectorStore(store.VectorStoreConfig{Dimension: 4})
	require.NoError(t, err)
	defer vectors.Close()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	m := New(dir, chunks, vectors, &countingEmbedder{dim: 4}, 1)

	require.NoError(t, m.AcquireExclusive(context.Background()))
	require.NoError(t, m.ReleaseExclusive())
}

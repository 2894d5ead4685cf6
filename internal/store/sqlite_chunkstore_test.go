package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunkStore(t *testing.T) *SQLiteChunkStore {
	t.Helper()
	s, err := NewSQLiteChunkStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleChunk(id, path string) Chunk {
	return Chunk{
		ID:          id,
		Path:        path,
		Content:     "func DoThing() error { return nil }",
		StartLine:   10,
		EndLine:     12,
		Kind:        KindFunction,
		Symbols:     []string{"DoThing"},
		FileHash:    "filehash123",
		ContentHash: "contenthash123",
		Language:    "go",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	c := sampleChunk("c1", "pkg/a.go")
	require.NoError(t, s.Insert(ctx, c))

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pkg/a.go", got.Path)
	assert.Equal(t, []string{"DoThing"}, got.Symbols)
}

func TestInsertInvalidKindFails(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	c := sampleChunk("c1", "pkg/a.go")
	c.Kind = Kind("bogus")
	err := s.Insert(ctx, c)
	require.Error(t, err)
}

func TestGetByPathOrderedByStartLine(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	c1 := sampleChunk("c1", "pkg/a.go")
	c1.StartLine = 50
	c2 := sampleChunk("c2", "pkg/a.go")
	c2.StartLine = 5
	require.NoError(t, s.InsertBatch(ctx, []Chunk{c1, c2}))

	chunks, err := s.GetByPath(ctx, "pkg/a.go")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "c2", chunks[0].ID)
	assert.Equal(t, "c1", chunks[1].ID)
}

func TestGetByContentHashes(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	c := sampleChunk("c1", "pkg/a.go")
	require.NoError(t, s.Insert(ctx, c))

	m, err := s.GetByContentHashes(ctx, []string{"contenthash123", "missing"})
	require.NoError(t, err)
	require.Contains(t, m, "contenthash123")
	assert.Equal(t, "c1", m["contenthash123"].ID)
}

func TestDeleteCascadesToConformanceAndFTS(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	c := sampleChunk("c1", "pkg/a.go")
	c.Kind = KindType
	c.IsTypeDeclaration = true
	c.Conformances = []string{"Codable"}
	require.NoError(t, s.Insert(ctx, c))

	conforming, err := s.FindConformingTypes(ctx, "Codable")
	require.NoError(t, err)
	require.Len(t, conforming, 1)

	require.NoError(t, s.Delete(ctx, "c1"))

	conforming, err = s.FindConformingTypes(ctx, "Codable")
	require.NoError(t, err)
	assert.Empty(t, conforming)

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindConformingTypesRequiresTypeDeclaration(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	c := sampleChunk("c1", "pkg/a.go")
	c.Conformances = []string{"Codable"}
	c.IsTypeDeclaration = false
	require.NoError(t, s.Insert(ctx, c))

	conforming, err := s.FindConformingTypes(ctx, "Codable")
	require.NoError(t, err)
	assert.Empty(t, conforming)
}

func TestSearchFTSFreeform(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	c1 := sampleChunk("c1", "pkg/a.go")
	c1.Content = "func ParseConfig() error"
	c2 := sampleChunk("c2", "pkg/b.go")
	c2.Content = "func WriteOutput() error"
	require.NoError(t, s.InsertBatch(ctx, []Chunk{c1, c2}))

	results, err := s.SearchFTS(ctx, "ParseConfig", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.Positive(t, results[0].Score)
}

func TestSearchFTSMalformedSanitizesToEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)
	results, err := s.SearchFTS(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGetTermFrequencyCached(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	c := sampleChunk("c1", "pkg/a.go")
	c.Content = "func RareSymbolName() error"
	require.NoError(t, s.Insert(ctx, c))

	freq, err := s.GetTermFrequency(ctx, "RareSymbolName")
	require.NoError(t, err)
	assert.Equal(t, 1, freq)

	// served from cache the second time
	freq2, err := s.GetTermFrequency(ctx, "RareSymbolName")
	require.NoError(t, err)
	assert.Equal(t, freq, freq2)
}

func TestTermFrequencyCacheInvalidatedOnMutation(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	c := sampleChunk("c1", "pkg/a.go")
	c.Content = "func UniqueTerm() error"
	require.NoError(t, s.Insert(ctx, c))
	freq, err := s.GetTermFrequency(ctx, "UniqueTerm")
	require.NoError(t, err)
	assert.Equal(t, 1, freq)

	c2 := sampleChunk("c2", "pkg/b.go")
	c2.Content = "func UniqueTerm() error"
	require.NoError(t, s.Insert(ctx, c2))

	freq, err = s.GetTermFrequency(ctx, "UniqueTerm")
	require.NoError(t, err)
	assert.Equal(t, 2, freq)
}

func TestFileHashUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	require.NoError(t, s.SetFileHash(ctx, "pkg/a.go", "hash1"))
	rec, err := s.GetFileHash(ctx, "pkg/a.go")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "hash1", rec.Hash)

	require.NoError(t, s.SetFileHash(ctx, "pkg/a.go", "hash2"))
	rec, err = s.GetFileHash(ctx, "pkg/a.go")
	require.NoError(t, err)
	assert.Equal(t, "hash2", rec.Hash)
}

func TestClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestChunkStore(t)

	require.NoError(t, s.Insert(ctx, sampleChunk("c1", "pkg/a.go")))
	require.NoError(t, s.SetFileHash(ctx, "pkg/a.go", "h1"))

	require.NoError(t, s.Clear(ctx))

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	rec, err := s.GetFileHash(ctx, "pkg/a.go")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

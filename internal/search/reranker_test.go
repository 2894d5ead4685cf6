package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencoderank/coderank/internal/store"
)

func TestRerankExactSymbolRarityBoost(t *testing.T) {
	e, chunks, vectors := setupEngine(t)
	mustInsert(t, chunks, vectors, "c1", "internal/rare.go", "func Rare() {}", []string{"Rare"}, []float32{1, 0, 0, 0})

	results := []Result{{Chunk: mustGet(t, chunks, "c1"), Score: 1.0}}
	reranked := e.rerank(context.Background(), results, "Rare")
	assert.Greater(t, reranked[0].Score, 1.0)
}

func TestRerankSourceTreeBoost(t *testing.T) {
	e, chunks, vectors := setupEngine(t)
	mustInsert(t, chunks, vectors, "c1", "internal/widget.go", "func Widget() {}", []string{"widget"}, []float32{1, 0, 0, 0})

	results := []Result{{Chunk: mustGet(t, chunks, "c1"), Score: 1.0}}
	reranked := e.rerank(context.Background(), results, "something else")
	assert.InDelta(t, 1.1, reranked[0].Score, 1e-9)
}

func TestRerankStandardProtocolDemotion(t *testing.T) {
	e, chunks, vectors := setupEngine(t)
	mustInsert(t, chunks, vectors, "c1", "other/ext.go", "extension Foo", []string{"foo"}, []float32{1, 0, 0, 0})

	c := mustGet(t, chunks, "c1")
	c.Kind = store.KindExtension
	c.Conformances = []string{"Equatable"}
	results := []Result{{Chunk: c, Score: 1.0}}

	reranked := e.rerank(context.Background(), results, "how does this work")
	assert.InDelta(t, 0.5, reranked[0].Score, 1e-9)
}

func TestIsConceptualQuery(t *testing.T) {
	assert.True(t, isConceptualQuery("How does this work"))
	assert.True(t, isConceptualQuery("what is this"))
	assert.False(t, isConceptualQuery("Widget constructor"))
}

func mustGet(t *testing.T, chunks store.ChunkStore, id string) store.Chunk {
	t.Helper()
	c, err := chunks.Get(context.Background(), id)
	require.NoError(t, err)
	return *c
}

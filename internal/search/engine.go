package search

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	cerr "github.com/opencoderank/coderank/internal/errors"
	"github.com/opencoderank/coderank/internal/store"
)

// Embedder is the single-text embedding surface the engine drives to embed
// a query; satisfied by *batch.Batcher.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine is the hybrid search engine. It holds no per-query state: every
// Search call is independent of any other.
type Engine struct {
	chunks   store.ChunkStore
	vectors  store.VectorStore
	embedder Embedder

	expander    *QueryExpander
	synthesizer *ResultSynthesizer
	followUps   *FollowUpGenerator
}

// New builds an Engine. expander, synthesizer, and followUps may be nil;
// their corresponding Options fields are then ignored rather than
// erroring, so a deployment without an LLM provider still gets base
// hybrid search.
func New(chunks store.ChunkStore, vectors store.VectorStore, embedder Embedder, expander *QueryExpander, synthesizer *ResultSynthesizer, followUps *FollowUpGenerator) *Engine {
	return &Engine{chunks: chunks, vectors: vectors, embedder: embedder, expander: expander, synthesizer: synthesizer, followUps: followUps}
}

// Outcome is the full return of a Search call: the ranked results plus any
// optional LLM-backed enrichment that ran.
type Outcome struct {
	Results   []Result
	Synthesis *Synthesis
	FollowUps []FollowUp
}

// Search runs retrieval, fusion, re-ranking, filtering, and the optional
// expansion/multi-hop/synthesis/follow-up enrichments around it.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (Outcome, error) {
	if strings.TrimSpace(query) == "" {
		return Outcome{}, cerr.New(cerr.ErrCodeInvalidQuery, "query must not be empty", nil)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultOptions().Limit
	}
	if opts.RRFConstant <= 0 {
		opts.RRFConstant = 60
	}

	denseQuery := query
	lexQuery := query

	// Step 1: optional query expansion.
	if opts.Expand && e.expander != nil {
		exp, err := e.expander.Expand(ctx, query)
		if err == nil {
			denseQuery = strings.Join(append([]string{exp.Original}, append(exp.Synonyms, exp.Related...)...), " ")
			lexQuery = orJoin(append([]string{exp.Original}, append(exp.Synonyms, exp.Variations...)...))
		}
	}

	results, err := e.retrieve(ctx, lexQuery, denseQuery, opts)
	if err != nil {
		return Outcome{}, err
	}

	// Step 5: re-ranking multipliers.
	results = e.rerank(ctx, results, query)

	// Step 6: filters.
	results = applyFilters(results, opts)

	sortResults(results)

	// Step 7: truncate to limit.
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	// Step 8: optional multi-hop expansion.
	if opts.MultiHopDepth >= 1 {
		results, err = e.multiHop(ctx, results, lexQuery, denseQuery, opts)
		if err != nil {
			return Outcome{}, err
		}
	}

	outcome := Outcome{Results: results}

	// Step 9: optional result synthesis.
	if opts.Synthesize && e.synthesizer != nil && len(results) > 0 {
		if syn, err := e.synthesizer.Synthesize(ctx, query, results); err == nil {
			outcome.Synthesis = &syn
		}
	}

	// Optional follow-up suggestions, generated from the final result set.
	if opts.FollowUps && e.followUps != nil && len(results) > 0 {
		if fu, err := e.followUps.Generate(ctx, query, results); err == nil {
			outcome.FollowUps = fu
		}
	}

	return outcome, nil
}

// retrieve runs lexical and dense retrieval in parallel and fuses with RRF.
func (e *Engine) retrieve(ctx context.Context, lexQuery, denseQuery string, opts Options) ([]Result, error) {
	fetchLimit := opts.Limit * oversampleFactor
	if fetchLimit < opts.Limit {
		fetchLimit = opts.Limit
	}

	var lexHits []store.FTSResult
	var vecHits []store.VectorResult
	var queryVec []float32

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexHits, err = e.chunks.SearchFTS(gctx, lexQuery, fetchLimit)
		return err
	})
	g.Go(func() error {
		if e.embedder == nil || e.vectors == nil {
			return nil
		}
		vecs, err := e.embedder.Embed(gctx, []string{denseQuery})
		if err != nil {
			return err
		}
		if len(vecs) == 0 {
			return nil
		}
		queryVec = vecs[0]
		vecHits, err = e.vectors.Search(gctx, queryVec, fetchLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fuse(lexHits, vecHits, e.chunks, ctx, opts)
}

// fuse implements the RRF formula: a chunk missing from one list
// contributes 0 for that list (no missing-rank substitution).
func fuse(lexHits []store.FTSResult, vecHits []store.VectorResult, chunks store.ChunkStore, ctx context.Context, opts Options) ([]Result, error) {
	scores := make(map[string]float64)
	chunkByID := make(map[string]store.Chunk)

	for rank, hit := range lexHits {
		chunkByID[hit.Chunk.ID] = hit.Chunk
		scores[hit.Chunk.ID] += (1 - opts.SemanticWeight) / float64(opts.RRFConstant+rank+1)
	}

	if len(vecHits) > 0 {
		ids := make([]string, len(vecHits))
		for i, h := range vecHits {
			ids[i] = h.ID
		}
		fetched, err := chunks.GetByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]store.Chunk, len(fetched))
		for _, c := range fetched {
			byID[c.ID] = c
		}
		for rank, h := range vecHits {
			c, ok := byID[h.ID]
			if !ok {
				continue // vector id has no corresponding chunk; dropped, not faulted
			}
			chunkByID[h.ID] = c
			scores[h.ID] += opts.SemanticWeight / float64(opts.RRFConstant+rank+1)
		}
	}

	out := make([]Result, 0, len(scores))
	for id, score := range scores {
		out = append(out, Result{Chunk: chunkByID[id], Score: score})
	}
	return out, nil
}

func applyFilters(results []Result, opts Options) []Result {
	if opts.PathFilter == "" && len(opts.ExtensionsFilter) == 0 {
		return results
	}
	out := results[:0:0]
	for _, r := range results {
		if opts.PathFilter != "" && !strings.Contains(r.Chunk.Path, opts.PathFilter) {
			continue
		}
		if len(opts.ExtensionsFilter) > 0 && !hasAnySuffix(r.Chunk.Path, opts.ExtensionsFilter) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func hasAnySuffix(path string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// sortResults breaks ties by (higher score, lower path, lower start_line).
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.Path != results[j].Chunk.Path {
			return results[i].Chunk.Path < results[j].Chunk.Path
		}
		return results[i].Chunk.StartLine < results[j].Chunk.StartLine
	})
}

// orJoin builds a prefix-OR lexical query from expansion terms, one
// individually-quoted prefix term per word.
func orJoin(terms []string) string {
	var parts []string
	seen := map[string]bool{}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		for _, w := range strings.Fields(t) {
			parts = append(parts, `"`+w+`"*`)
		}
	}
	return strings.Join(parts, " OR ")
}

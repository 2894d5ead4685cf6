package search

import (
	"context"
	"strings"
)

// multiHop collects identifiers referenced by the current top results,
// formulates a secondary query from them, runs the base retrieval again
// with the limit halved, re-ranks those candidates, and merges them into
// the current results once per hop. The merge keeps the higher of a
// chunk's two scores; the two rounds are not re-fused by RRF.
// Depth bounds the number of hops; the result set never exceeds opts.Limit.
func (e *Engine) multiHop(ctx context.Context, results []Result, lexQuery, denseQuery string, opts Options) ([]Result, error) {
	for hop := 0; hop < opts.MultiHopDepth; hop++ {
		idents := collectIdentifiers(results)
		if len(idents) == 0 {
			break
		}
		secondaryQuery := strings.Join(idents, " ")

		hopOpts := opts
		hopOpts.Limit = opts.Limit / 2
		if hopOpts.Limit < 1 {
			hopOpts.Limit = 1
		}

		more, err := e.retrieve(ctx, secondaryQuery, secondaryQuery, hopOpts)
		if err != nil {
			return nil, err
		}

		more = e.rerank(ctx, more, lexQuery)
		merged := mergeByChunkID(results, more)
		merged = applyFilters(merged, opts)
		sortResults(merged)
		if len(merged) > opts.Limit {
			merged = merged[:opts.Limit]
		}
		results = merged
	}
	return results, nil
}

// collectIdentifiers gathers the union of references and symbols from the
// top results to seed the secondary hop query.
func collectIdentifiers(results []Result) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range results {
		for _, s := range append(append([]string{}, r.Chunk.Symbols...), r.Chunk.References...) {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeByChunkID(a, b []Result) []Result {
	byID := make(map[string]Result, len(a)+len(b))
	for _, r := range a {
		byID[r.Chunk.ID] = r
	}
	for _, r := range b {
		if existing, ok := byID[r.Chunk.ID]; ok {
			if r.Score > existing.Score {
				byID[r.Chunk.ID] = r
			}
			continue
		}
		byID[r.Chunk.ID] = r
	}
	out := make([]Result, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	return out
}

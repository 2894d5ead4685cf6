// Package search implements the hybrid search engine: fusing lexical and
// dense retrieval with Reciprocal Rank Fusion, applying re-ranking
// multipliers, and optional LLM-backed query expansion, result synthesis,
// and follow-up generation.
package search

import (
	"github.com/opencoderank/coderank/internal/store"
)

// Options configures one Search call.
type Options struct {
	Limit            int
	SemanticWeight   float64 // in [0,1]; 0 = pure lexical, 1 = pure semantic
	RRFConstant      int     // rrf_k, default 60
	PathFilter       string  // substring match against chunk.Path
	ExtensionsFilter []string
	Expand           bool // run QueryExpander
	Synthesize       bool // run ResultSynthesizer
	FollowUps        bool // run FollowUpGenerator
	MultiHopDepth    int
}

// DefaultOptions returns the package defaults (limit 10, equal weighting,
// rrf_k 60).
func DefaultOptions() Options {
	return Options{
		Limit:          10,
		SemanticWeight: 0.5,
		RRFConstant:    60,
	}
}

// Result is one ranked chunk, carrying the fused/reranked score.
type Result struct {
	Chunk store.Chunk
	Score float64
}

// oversampleFactor is how many times Limit is fetched from each retrieval
// source before fusion, so RRF has enough candidates to rank over.
const oversampleFactor = 3

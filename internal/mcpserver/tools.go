package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opencoderank/coderank/internal/ingest"
	"github.com/opencoderank/coderank/internal/search"
)

// IndexCodebaseInput is the index_codebase tool's input.
type IndexCodebaseInput struct {
	Path  string `json:"path" jsonschema:"reported back as the result's path; the server always indexes the project root it was started on"`
	Force bool   `json:"force,omitempty" jsonschema:"reparse every file even if its content hash is unchanged"`
	Async bool   `json:"async,omitempty" jsonschema:"return immediately with a task_id instead of waiting for the run to finish"`
}

// IndexCodebaseOutput is the synchronous index_codebase result.
type IndexCodebaseOutput struct {
	TaskID         string `json:"task_id,omitempty"`
	Status         string `json:"status,omitempty"`
	EstimatedFiles int    `json:"estimated_files,omitempty"`
	Message        string `json:"message,omitempty"`

	IndexedFiles int      `json:"indexed_files,omitempty"`
	SkippedFiles int      `json:"skipped_files,omitempty"`
	Chunks       int      `json:"chunks,omitempty"`
	TotalChunks  int      `json:"total_chunks,omitempty"`
	TotalFiles   int      `json:"total_files,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	Path         string   `json:"path,omitempty"`
	Forced       bool     `json:"forced,omitempty"`
}

// SearchCodeInput is the search_code tool's input.
type SearchCodeInput struct {
	Query      string   `json:"query" jsonschema:"the search query"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	PathFilter string   `json:"path_filter,omitempty" jsonschema:"substring filter against each chunk's file path"`
	Extensions []string `json:"extensions,omitempty" jsonschema:"restrict results to these file extensions, e.g. [\".go\"]"`
	Expand     bool     `json:"expand,omitempty" jsonschema:"run LLM-assisted query expansion before retrieval"`
	Synthesize bool     `json:"synthesize,omitempty" jsonschema:"run LLM-assisted result synthesis over the top results"`
	FollowUps  bool     `json:"follow_ups,omitempty" jsonschema:"suggest follow-up queries based on the results"`
}

// SearchCodeOutput is the search_code tool's output.
type SearchCodeOutput struct {
	Results   []SearchCodeResult `json:"results"`
	Synthesis *SynthesisOutput   `json:"synthesis,omitempty"`
	FollowUps []string           `json:"follow_ups,omitempty"`
}

// SearchCodeResult is one ranked chunk.
type SearchCodeResult struct {
	Path       string  `json:"path"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Kind       string  `json:"kind"`
	Score      float64 `json:"score"`
	Signature  string  `json:"signature,omitempty"`
	Breadcrumb string  `json:"breadcrumb,omitempty"`
	Snippet    string  `json:"snippet"`
}

// SynthesisOutput mirrors search.Synthesis for the optional synthesis
// step's result.
type SynthesisOutput struct {
	Summary    string   `json:"summary"`
	Insights   []string `json:"insights,omitempty"`
	References []string `json:"references,omitempty"`
	Confidence float64  `json:"confidence"`
}

// IndexStatusInput is the index_status tool's input: a caller that kicked
// off an async index run needs a way to poll it.
type IndexStatusInput struct {
	TaskID string `json:"task_id" jsonschema:"the task_id returned by an async index_codebase call"`
}

// IndexStatusOutput reports one async task's state.
type IndexStatusOutput struct {
	Status string                `json:"status"` // running, done, failed
	Result *IndexCodebaseOutput  `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

type taskState struct {
	mu     sync.Mutex
	status string
	result *IndexCodebaseOutput
	err    string
}

func (s *Server) handleIndexCodebase(ctx context.Context, _ *mcp.CallToolRequest, input IndexCodebaseInput) (
	*mcp.CallToolResult,
	IndexCodebaseOutput,
	error,
) {
	path := input.Path
	if path == "" {
		path = s.app.Root
	}

	if input.Async {
		id := newTaskID()
		st := &taskState{status: "running"}
		s.mu.Lock()
		s.tasks[id] = st
		s.mu.Unlock()

		go func() {
			stats, err := s.app.Index(context.Background(), input.Force)
			st.mu.Lock()
			defer st.mu.Unlock()
			if err != nil {
				st.status = "failed"
				st.err = err.Error()
				return
			}
			st.status = "done"
			st.result = s.toIndexOutput(stats, path, input.Force)
		}()

		return nil, IndexCodebaseOutput{
			TaskID:  id,
			Status:  "running",
			Message: "indexing started",
		}, nil
	}

	stats, err := s.app.Index(ctx, input.Force)
	if err != nil {
		return nil, IndexCodebaseOutput{}, MapError(err)
	}
	return nil, *s.toIndexOutput(stats, path, input.Force), nil
}

func (s *Server) toIndexOutput(stats ingest.Stats, path string, forced bool) *IndexCodebaseOutput {
	return &IndexCodebaseOutput{
		IndexedFiles: stats.IndexedFiles,
		SkippedFiles: stats.SkippedFiles,
		Chunks:       stats.Chunks,
		TotalChunks:  s.app.Manager.Statistics().TotalChunks,
		TotalFiles:   stats.TotalFiles,
		Errors:       stats.Errors,
		Path:         path,
		Forced:       forced,
	}
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, input IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	s.mu.Lock()
	st, ok := s.tasks[input.TaskID]
	s.mu.Unlock()
	if !ok {
		return nil, IndexStatusOutput{}, NewTaskNotFoundError(input.TaskID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return nil, IndexStatusOutput{Status: st.status, Result: st.result, Error: st.err}, nil
}

func (s *Server) handleSearchCode(ctx context.Context, _ *mcp.CallToolRequest, input SearchCodeInput) (
	*mcp.CallToolResult,
	SearchCodeOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchCodeOutput{}, NewInvalidParamsError("query parameter is required")
	}

	opts := search.DefaultOptions()
	if input.Limit > 0 {
		opts.Limit = input.Limit
	}
	opts.PathFilter = input.PathFilter
	opts.ExtensionsFilter = input.Extensions
	opts.Expand = input.Expand
	opts.Synthesize = input.Synthesize
	opts.FollowUps = input.FollowUps
	opts.SemanticWeight = s.app.Config.Search.SemanticWeight
	opts.RRFConstant = s.app.Config.Search.RRFConstant
	if s.app.Config.Search.MultiHopEnabled {
		opts.MultiHopDepth = s.app.Config.Search.MultiHopDepth
	}

	outcome, err := s.app.Engine.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchCodeOutput{}, MapError(err)
	}

	out := SearchCodeOutput{Results: make([]SearchCodeResult, 0, len(outcome.Results))}
	for _, r := range outcome.Results {
		out.Results = append(out.Results, SearchCodeResult{
			Path:       r.Chunk.Path,
			StartLine:  r.Chunk.StartLine,
			EndLine:    r.Chunk.EndLine,
			Kind:       string(r.Chunk.Kind),
			Score:      r.Score,
			Signature:  r.Chunk.Signature,
			Breadcrumb: r.Chunk.Breadcrumb,
			Snippet:    snippet(r.Chunk.Content),
		})
	}
	if outcome.Synthesis != nil {
		out.Synthesis = &SynthesisOutput{
			Summary:    outcome.Synthesis.Summary,
			Insights:   outcome.Synthesis.Insights,
			References: outcome.Synthesis.References,
			Confidence: outcome.Synthesis.Confidence,
		}
	}
	for _, fu := range outcome.FollowUps {
		out.FollowUps = append(out.FollowUps, fu.Query)
	}
	return nil, out, nil
}

const snippetMaxRunes = 400

// snippet truncates chunk content for the wire response; full content stays
// retrievable via a direct file read.
func snippet(content string) string {
	r := []rune(content)
	if len(r) <= snippetMaxRunes {
		return content
	}
	return string(r[:snippetMaxRunes]) + "..."
}

func newTaskID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

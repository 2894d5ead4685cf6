// Package chunkparser defines the Parser interface the index manager
// treats as a pluggable collaborator, plus one concrete tree-sitter-backed
// implementation so the manager has something real to drive in tests and
// the CLI.
package chunkparser

import (
	"context"

	"github.com/opencoderank/coderank/internal/hash"
	"github.com/opencoderank/coderank/internal/store"
)

// Outcome is the parse result classification the index manager branches on.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// Result is what a Parser hands back to the Index Manager for one file.
type Result struct {
	Chunks   []store.Chunk
	Snippets []store.InfoSnippet
	Outcome  Outcome
}

// Parser maps file content to chunks. Implementations must not mutate
// content and must be safe for concurrent use across files.
type Parser interface {
	Parse(ctx context.Context, content []byte, path, fileHash string) (Result, error)
	Language() string
}

// NewChunk is a convenience constructor that takes the caller's id and
// file hash and computes the content hash from content, so every chunk
// carries both a file hash and a content hash.
func NewChunk(id, path string, content []byte, fileHash string, kind store.Kind) store.Chunk {
	return store.Chunk{
		ID:          id,
		Path:        path,
		Content:     string(content),
		Kind:        kind,
		FileHash:    fileHash,
		ContentHash: hash.Bytes(content),
	}
}

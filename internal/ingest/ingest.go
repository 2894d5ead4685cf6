// Package ingest wires file discovery (internal/scanner), chunking
// (internal/chunkparser), and the content-hash diff (internal/index) into
// the single "index a tree" operation the CLI's `index` command and the
// MCP server's `index_codebase` tool both drive.
package ingest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/opencoderank/coderank/internal/chunkparser"
	cerr "github.com/opencoderank/coderank/internal/errors"
	"github.com/opencoderank/coderank/internal/hash"
	"github.com/opencoderank/coderank/internal/index"
	"github.com/opencoderank/coderank/internal/scanner"
)

// Parser is the chunkparser.Parser interface, driven by Run one file at a
// time.
type Parser = chunkparser.Parser

// Options configures a Run.
type Options struct {
	Exclude           []string
	IncludeExtensions []string
	MaxFileSize       int64
	Force             bool // re-parse every file even if its file_hash is unchanged
	Concurrency       int
}

// Stats summarizes one Run, matching the JSON-RPC index_codebase result
// shape.
type Stats struct {
	TotalFiles   int
	IndexedFiles int
	SkippedFiles int
	Chunks       int
	Errors       []string
}

// Run walks root, parses every file whose content changed (or every file,
// if Force), and commits the result through mgr.Reindex — one file per
// commit.
func Run(ctx context.Context, root string, mgr *index.Manager, parser Parser, opts Options) (Stats, error) {
	files, err := scanner.Walk(root, scanner.Options{
		Exclude:           opts.Exclude,
		IncludeExtensions: opts.IncludeExtensions,
		MaxFileSize:       opts.MaxFileSize,
	})
	if err != nil {
		return Stats{}, cerr.Wrap(cerr.ErrCodeIndexFailed, err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var stats Stats
	var mu sync.Mutex
	stats.TotalFiles = len(files)

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)

	for _, f := range files {
		f := f
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			return indexOne(gctx, f, mgr, parser, opts, &stats, &mu)
		})
	}
	if err := g.Wait(); err != nil && len(stats.Errors) == 0 {
		return stats, err
	}
	return stats, nil
}

func indexOne(ctx context.Context, f scanner.File, mgr *index.Manager, parser Parser, opts Options, stats *Stats, mu *sync.Mutex) error {
	content, err := os.ReadFile(f.Abs)
	if err != nil {
		recordError(stats, mu, fmt.Sprintf("%s: read: %v", f.Path, err))
		return nil
	}
	fileHash := hash.Bytes(content)

	if !opts.Force {
		needs, err := mgr.NeedsIndexing(ctx, f.Path, fileHash)
		if err != nil {
			recordError(stats, mu, fmt.Sprintf("%s: %v", f.Path, err))
			return nil
		}
		if !needs {
			mu.Lock()
			stats.SkippedFiles++
			mu.Unlock()
			return nil
		}
	}

	result, err := parser.Parse(ctx, content, f.Path, fileHash)
	if err != nil {
		recordError(stats, mu, fmt.Sprintf("%s: parse: %v", f.Path, err))
		return nil
	}
	if result.Outcome == chunkparser.OutcomeFailure {
		recordError(stats, mu, fmt.Sprintf("%s: parse failed", f.Path))
		return nil
	}

	if err := mgr.Reindex(ctx, f.Path, fileHash, result.Chunks); err != nil {
		recordError(stats, mu, fmt.Sprintf("%s: reindex: %v", f.Path, err))
		return nil
	}

	mu.Lock()
	stats.IndexedFiles++
	stats.Chunks += len(result.Chunks)
	mu.Unlock()
	return nil
}

func recordError(stats *Stats, mu *sync.Mutex, msg string) {
	mu.Lock()
	defer mu.Unlock()
	stats.Errors = append(stats.Errors, msg)
}

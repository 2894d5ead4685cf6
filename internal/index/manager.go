// Package index implements the single writer coordinator that owns a
// chunk store, a vector store, and an embedding batcher for one index
// directory, and drives the content-hash diff that makes reindexing
// incremental.
package index

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	cerr "github.com/opencoderank/coderank/internal/errors"
	"github.com/opencoderank/coderank/internal/hash"
	"github.com/opencoderank/coderank/internal/store"
)

// defaultLockRetryInterval is how often AcquireExclusive polls for the
// directory lock while ctx remains unexpired.
const defaultLockRetryInterval = 50 * time.Millisecond

// Embedder is the single-text/batch embedding surface the manager drives;
// satisfied by *batch.Batcher in production and a fake in tests.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Manager owns one index directory's chunk/vector stores and batcher.
// Per-file work is independent; file-level ingest is the commit unit.
type Manager struct {
	chunks   store.ChunkStore
	vectors  store.VectorStore
	embedder Embedder

	dir  string
	lock *flock.Flock

	maxConcurrency int

	mu    sync.Mutex
	stats Statistics
}

// Statistics accumulates ingest counters across reindex calls for
// observability.
type Statistics struct {
	IndexedFiles int
	SkippedFiles int
	TotalChunks  int
	Errors       int
}

// New builds a Manager over an already-open chunk/vector store pair.
// maxConcurrency <= 0 defaults to the host's logical CPU count.
func New(dir string, chunks store.ChunkStore, vectors store.VectorStore, embedder Embedder, maxConcurrency int) *Manager {
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.NumCPU()
	}
	return &Manager{
		dir:            dir,
		chunks:         chunks,
		vectors:        vectors,
		embedder:       embedder,
		maxConcurrency: maxConcurrency,
		lock:           flock.New(dir + "/index.lock"),
	}
}

// AcquireExclusive enforces that each index directory is owned by one
// process at a time, via an OS file lock. Call once before any mutating
// operation; release with ReleaseExclusive.
func (m *Manager) AcquireExclusive(ctx context.Context) error {
	ok, err := m.lock.TryLockContext(ctx, defaultLockRetryInterval)
	if err != nil {
		return cerr.Wrap(cerr.ErrCodeStoreIO, err)
	}
	if !ok {
		return cerr.New(cerr.ErrCodeStoreIO, "index directory is locked by another process", nil)
	}
	return nil
}

// ReleaseExclusive releases the directory lock.
func (m *Manager) ReleaseExclusive() error {
	return m.lock.Unlock()
}

// NeedsIndexing reports whether path's stored hash differs from fileHash or
// is absent.
func (m *Manager) NeedsIndexing(ctx context.Context, path, fileHash string) (bool, error) {
	rec, err := m.chunks.GetFileHash(ctx, path)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return true, nil
	}
	return rec.Hash != fileHash, nil
}

// NewChunkInput is a not-yet-embedded chunk produced by a Parser; the
// manager fills in the vector during Reindex.
type NewChunkInput struct {
	Chunk store.Chunk
}

// Reindex runs the full six-step ingest contract for one file. newChunks
// must all carry the same Path and a populated ContentHash (the parser's
// job); fileHash is the whole-file hash to record on success.
func (m *Manager) Reindex(ctx context.Context, path, fileHash string, newChunks []store.Chunk) error {
	if err := ctx.Err(); err != nil {
		return cerr.Wrap(cerr.ErrCodeCancelled, err)
	}

	// Step 1: fetch existing chunks for path.
	existing, err := m.chunks.GetByPath(ctx, path)
	if err != nil {
		return err
	}

	// Step 2/3: partition by content_hash reuse across the whole index, not
	// just this path — a chunk that moved file but kept identical content
	// still reuses its vector.
	newHashes := make([]string, 0, len(newChunks))
	for _, c := range newChunks {
		newHashes = append(newHashes, c.ContentHash)
	}
	reusable, err := m.chunks.GetByContentHashes(ctx, newHashes)
	if err != nil {
		return err
	}

	toEmbed := make([]store.Chunk, 0, len(newChunks))
	toEmbedIdx := make([]int, 0, len(newChunks))
	final := make([]store.Chunk, len(newChunks))
	copy(final, newChunks)

	for i, c := range final {
		if prior, ok := reusable[c.ContentHash]; ok {
			// Reuse the existing vector by remapping it to the new chunk's id.
			vec, verr := m.lookupVector(ctx, prior.ID)
			if verr == nil && vec != nil {
				final[i].GeneratedDescription = prior.GeneratedDescription
				continue
			}
		}
		toEmbed = append(toEmbed, final[i])
		toEmbedIdx = append(toEmbedIdx, i)
	}

	var embeddings [][]float32
	if len(toEmbed) > 0 {
		texts := make([]string, len(toEmbed))
		for i, c := range toEmbed {
			texts[i] = c.Content
		}
		embeddings, err = m.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
	}

	// Step 4: delete old chunks/vectors for path not reused by content hash.
	reusedOldIDs := map[string]bool{}
	for _, c := range final {
		if prior, ok := reusable[c.ContentHash]; ok {
			reusedOldIDs[prior.ID] = true
		}
	}
	var staleIDs []string
	for _, old := range existing {
		if !reusedOldIDs[old.ID] {
			staleIDs = append(staleIDs, old.ID)
		}
	}
	for _, id := range staleIDs {
		if err := m.chunks.Delete(ctx, id); err != nil {
			return err
		}
		if err := m.vectors.Delete(ctx, id); err != nil {
			return err
		}
	}

	// Step 5: insert new chunks and their vectors as one logical unit.
	if err := m.chunks.InsertBatch(ctx, final); err != nil {
		return err
	}

	vecIDs := make([]string, 0, len(final))
	vecs := make([][]float32, 0, len(final))
	for i, c := range final {
		if prior, ok := reusable[c.ContentHash]; ok {
			if vec, verr := m.lookupVector(ctx, prior.ID); verr == nil && vec != nil {
				vecIDs = append(vecIDs, c.ID)
				vecs = append(vecs, vec)
				continue
			}
		}
	}
	for j, idx := range toEmbedIdx {
		vecIDs = append(vecIDs, final[idx].ID)
		vecs = append(vecs, embeddings[j])
	}
	if len(vecIDs) > 0 {
		if err := m.vectors.InsertBatch(ctx, vecIDs, vecs); err != nil {
			// Roll back the chunk insert if the vector write fails, so the
			// two stores never diverge.
			for _, c := range final {
				_ = m.chunks.Delete(ctx, c.ID)
			}
			return err
		}
	}

	// Step 6: upsert file_hash for path.
	if err := m.chunks.SetFileHash(ctx, path, fileHash); err != nil {
		return err
	}

	m.mu.Lock()
	m.stats.IndexedFiles++
	m.stats.TotalChunks += len(final)
	m.mu.Unlock()
	return nil
}

// lookupVector fetches the vector stored for a reused chunk's old id, so it
// can be reinserted under the new chunk's id without a provider call.
func (m *Manager) lookupVector(ctx context.Context, id string) ([]float32, error) {
	vec, ok, err := m.vectors.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return vec, nil
}

// RecordIndexed marks path as processed without touching chunks, for a
// parse-free path such as a parse failure or zero-chunk file.
func (m *Manager) RecordIndexed(ctx context.Context, path, fileHash string) error {
	m.mu.Lock()
	m.stats.SkippedFiles++
	m.mu.Unlock()
	return m.chunks.SetFileHash(ctx, path, fileHash)
}

// FileJob is one unit of parallel ingest work.
type FileJob struct {
	Path      string
	FileHash  string
	NewChunks []store.Chunk
	ParseOK   bool
}

// ReindexAll processes jobs with bounded parallelism. Per-file errors are
// counted, not fatal to the overall run.
func (m *Manager) ReindexAll(ctx context.Context, jobs []FileJob) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrency)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil // cooperative cancellation: stop launching new work
			}
			var err error
			if job.ParseOK {
				err = m.Reindex(gctx, job.Path, job.FileHash, job.NewChunks)
			} else {
				err = m.RecordIndexed(gctx, job.Path, job.FileHash)
			}
			if err != nil {
				m.mu.Lock()
				m.stats.Errors++
				m.mu.Unlock()
			}
			return nil // per-file errors don't abort the batch
		})
	}
	return g.Wait()
}

// Clear drops all chunks, vectors, and file hashes.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.chunks.Clear(ctx); err != nil {
		return err
	}
	if err := m.vectors.Clear(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.stats = Statistics{}
	m.mu.Unlock()
	return nil
}

// Save persists the vector store (the chunk store is durable on every
// commit; only the vector store needs an explicit save).
func (m *Manager) Save(path string) error {
	return m.vectors.Save(path)
}

// Statistics returns a snapshot of ingest counters.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// ConsistencyCheck validates that every chunk id a vector search would
// surface still resolves in the chunk store.
func (m *Manager) ConsistencyCheck(ctx context.Context, sampleVectorIDs []string) error {
	if len(sampleVectorIDs) == 0 {
		return nil
	}
	chunks, err := m.chunks.GetByIDs(ctx, sampleVectorIDs)
	if err != nil {
		return err
	}
	found := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		found[c.ID] = true
	}
	for _, id := range sampleVectorIDs {
		if !found[id] {
			return cerr.New(cerr.ErrCodeStoreCorrupt,
				fmt.Sprintf("vector id %s has no corresponding chunk", id), nil)
		}
	}
	return nil
}

// HashFile is a convenience wrapper so callers outside this package don't
// need to import internal/hash directly just to compute a file_hash.
func HashFile(content []byte) string {
	return hash.Bytes(content)
}

// Package batch coalesces embed requests from many concurrent callers into
// fewer, larger provider calls, flushing on whichever of
// size/memory/idle/explicit fires first.
package batch

import (
	"context"
	"sync"
	"time"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

// Embedder is the provider operation a Batcher coalesces calls to.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds the three flush triggers.
type Config struct {
	BatchSize       int
	IdleTimeout     time.Duration
	MemoryLimitBytes int
}

// DefaultConfig returns the default flush triggers: 32 texts, 150ms idle,
// 10MiB.
func DefaultConfig() Config {
	return Config{
		BatchSize:        32,
		IdleTimeout:      150 * time.Millisecond,
		MemoryLimitBytes: 10 * 1024 * 1024,
	}
}

type pendingRequest struct {
	texts  []string
	result chan requestResult
}

type requestResult struct {
	vectors [][]float32
	err     error
}

// Batcher is a single-logical-owner queue: manipulation of the pending
// list is serialized by mu, but the provider call that drains a batch
// happens after mu is released.
type Batcher struct {
	cfg      Config
	embedder Embedder

	mu          sync.Mutex
	pending     []pendingRequest
	pendingText int
	pendingBytes int
	timer       *time.Timer
	closed      bool

	flushTrigger chan struct{}
}

// New builds a Batcher that calls embedder to fulfill coalesced requests.
func New(embedder Embedder, cfg Config) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 150 * time.Millisecond
	}
	if cfg.MemoryLimitBytes <= 0 {
		cfg.MemoryLimitBytes = 10 * 1024 * 1024
	}
	return &Batcher{cfg: cfg, embedder: embedder}
}

// Embed enqueues texts and blocks until this caller's batch has been
// embedded, returning exactly one vector per input text in order.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := pendingRequest{texts: texts, result: make(chan requestResult, 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, cerr.New(cerr.ErrCodeShutdown, "embedding batcher is shut down", nil)
	}

	b.pending = append(b.pending, req)
	b.pendingText += len(texts)
	for _, t := range texts {
		b.pendingBytes += len(t)
	}

	shouldFlush := b.pendingText >= b.cfg.BatchSize || b.pendingBytes >= b.cfg.MemoryLimitBytes
	if shouldFlush {
		batch := b.takeLocked()
		b.mu.Unlock()
		b.runBatch(ctx, batch)
	} else {
		b.resetIdleTimerLocked()
		b.mu.Unlock()
	}

	select {
	case res := <-req.result:
		return res.vectors, res.err
	case <-ctx.Done():
		return nil, cerr.Wrap(cerr.ErrCodeCancelled, ctx.Err())
	}
}

// Flush forces an immediate flush of whatever is pending, a no-op if
// nothing is queued.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	if len(batch) > 0 {
		b.runBatch(ctx, batch)
	}
}

// Shutdown fails every still-pending request with a terminal error and
// rejects all future Embed calls.
func (b *Batcher) Shutdown() {
	b.mu.Lock()
	b.closed = true
	batch := b.takeLocked()
	b.mu.Unlock()

	err := cerr.New(cerr.ErrCodeShutdown, "embedding batcher shut down with requests pending", nil)
	for _, req := range batch {
		req.result <- requestResult{err: err}
	}
}

// takeLocked removes and returns the whole pending list, resetting
// counters and the idle timer. Caller must hold mu.
func (b *Batcher) takeLocked() []pendingRequest {
	batch := b.pending
	b.pending = nil
	b.pendingText = 0
	b.pendingBytes = 0
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return batch
}

func (b *Batcher) resetIdleTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.cfg.IdleTimeout, func() {
		b.mu.Lock()
		batch := b.takeLocked()
		b.mu.Unlock()
		if len(batch) > 0 {
			b.runBatch(context.Background(), batch)
		}
	})
}

// runBatch performs the actual provider call outside the lock and
// distributes results back to each caller by remembering the per-request
// range it occupies in the concatenated input.
func (b *Batcher) runBatch(ctx context.Context, reqs []pendingRequest) {
	if len(reqs) == 0 {
		return
	}

	var allTexts []string
	ranges := make([][2]int, len(reqs))
	for i, req := range reqs {
		start := len(allTexts)
		allTexts = append(allTexts, req.texts...)
		ranges[i] = [2]int{start, len(allTexts)}
	}

	vectors, err := b.embedder.Embed(ctx, allTexts)
	if err != nil {
		for _, req := range reqs {
			req.result <- requestResult{err: err}
		}
		return
	}

	for i, req := range reqs {
		start, end := ranges[i][0], ranges[i][1]
		req.result <- requestResult{vectors: vectors[start:end]}
	}
}

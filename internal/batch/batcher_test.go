package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	fn    func(texts []string) ([][]float32, error)
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fn != nil {
		return e.fn(texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func TestEmbedReturnsOneVectorPerText(t *testing.T) {
	e := &countingEmbedder{}
	b := New(e, DefaultConfig())
	vecs, err := b.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
}

func TestBatchSizeTriggersFlush(t *testing.T) {
	e := &countingEmbedder{}
	b := New(e, Config{BatchSize: 2, IdleTimeout: time.Hour, MemoryLimitBytes: 1 << 30})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = b.Embed(context.Background(), []string{"x"}) }()
	go func() { defer wg.Done(); _, _ = b.Embed(context.Background(), []string{"y"}) }()
	wg.Wait()

	e.mu.Lock()
	calls := e.calls
	e.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestIdleTimeoutTriggersFlush(t *testing.T) {
	e := &countingEmbedder{}
	b := New(e, Config{BatchSize: 100, IdleTimeout: 10 * time.Millisecond, MemoryLimitBytes: 1 << 30})

	vecs, err := b.Embed(context.Background(), []string{"solo"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
}

func TestErrorPropagatesToAllCallersInBatch(t *testing.T) {
	wantErr := assert.AnError
	e := &countingEmbedder{fn: func(texts []string) ([][]float32, error) { return nil, wantErr }}
	b := New(e, Config{BatchSize: 2, IdleTimeout: time.Hour, MemoryLimitBytes: 1 << 30})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = b.Embed(context.Background(), []string{"x"}) }()
	go func() { defer wg.Done(); _, errs[1] = b.Embed(context.Background(), []string{"y"}) }()
	wg.Wait()

	assert.ErrorIs(t, errs[0], wantErr)
	assert.ErrorIs(t, errs[1], wantErr)
}

func TestShutdownFailsPendingAndRejectsNew(t *testing.T) {
	e := &countingEmbedder{}
	b := New(e, Config{BatchSize: 100, IdleTimeout: time.Hour, MemoryLimitBytes: 1 << 30})
	b.Shutdown()

	_, err := b.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
}

func TestFlushForcesImmediateBatch(t *testing.T) {
	e := &countingEmbedder{}
	b := New(e, Config{BatchSize: 100, IdleTimeout: time.Hour, MemoryLimitBytes: 1 << 30})

	done := make(chan struct{})
	go func() {
		_, _ = b.Embed(context.Background(), []string{"x"})
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	b.Flush(context.Background())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flush did not release pending request")
	}
}

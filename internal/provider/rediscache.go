package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedEmbedder wraps an EmbeddingProvider with an optional distributed
// cache, so identical chunk content embedded across multiple machines
// sharing an index directory over a network filesystem doesn't re-pay the
// provider call. This is additive to the in-process batcher and the
// per-process LRU caches elsewhere in coderank (the store's term-frequency
// cache, the search package's query-expansion cache) — those bound
// per-process memory, this bounds cross-process provider spend.
type CachedEmbedder struct {
	inner EmbeddingProvider
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedEmbedder wraps inner with a Redis-backed cache keyed by text.
// A nil rdb makes this a pure passthrough, for callers that didn't
// configure a cache.
func NewCachedEmbedder(inner EmbeddingProvider, rdb *redis.Client, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedEmbedder) ID() string     { return c.inner.ID() }
func (c *CachedEmbedder) Name() string   { return c.inner.Name() }
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEmbedder) IsAvailable(ctx context.Context) bool {
	return c.inner.IsAvailable(ctx)
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.rdb == nil {
		return c.inner.Embed(ctx, texts)
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		key := c.cacheKey(t)
		val, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			var vec []float32
			if jerr := json.Unmarshal([]byte(val), &vec); jerr == nil {
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = vectors[j]
		b, merr := json.Marshal(vectors[j])
		if merr == nil {
			_ = c.rdb.Set(ctx, c.cacheKey(missTexts[j]), b, c.ttl).Err()
		}
	}
	return out, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	return "coderank:embed:" + c.inner.ID() + ":" + hashKey(text)
}

func hashKey(s string) string {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return itoaUint64(h)
}

func itoaUint64(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

var _ EmbeddingProvider = (*CachedEmbedder)(nil)

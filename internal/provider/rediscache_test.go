package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedderNilRedisIsPassthrough(t *testing.T) {
	inner := NewStaticEmbedder(8)
	c := NewCachedEmbedder(inner, nil, time.Hour)

	got, err := c.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	want, err := inner.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCachedEmbedderDelegatesIdentity(t *testing.T) {
	inner := NewStaticEmbedder(8)
	c := NewCachedEmbedder(inner, nil, time.Hour)

	assert.Equal(t, inner.ID(), c.ID())
	assert.Equal(t, inner.Name(), c.Name())
	assert.Equal(t, inner.Dimension(), c.Dimension())
	assert.Equal(t, inner.IsAvailable(context.Background()), c.IsAvailable(context.Background()))
}

func TestCachedEmbedderDefaultsTTL(t *testing.T) {
	c := NewCachedEmbedder(NewStaticEmbedder(8), nil, 0)
	assert.Equal(t, 24*time.Hour, c.ttl)
}

func TestCacheKeyStableForSameText(t *testing.T) {
	c := NewCachedEmbedder(NewStaticEmbedder(8), nil, time.Hour)
	assert.Equal(t, c.cacheKey("hello"), c.cacheKey("hello"))
	assert.NotEqual(t, c.cacheKey("hello"), c.cacheKey("world"))
}

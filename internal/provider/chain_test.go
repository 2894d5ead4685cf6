package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	id        string
	available bool
	result    string
	err       error
	calls     int
}

func (f *fakeProvider) ID() string { return f.id }
func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return f.available }

func TestChainTriesInOrderAndSticks(t *testing.T) {
	a := &fakeProvider{id: "a", available: true, err: assert.AnError}
	b := &fakeProvider{id: "b", available: true, result: "ok-from-b"}
	chain := NewChain[*fakeProvider](a, b)

	op := func(ctx context.Context, p *fakeProvider) (string, error) {
		p.calls++
		return p.result, p.err
	}

	res, err := Call[*fakeProvider, string](context.Background(), chain, op)
	require.NoError(t, err)
	assert.Equal(t, "ok-from-b", res)
	assert.Equal(t, "b", chain.currentSticky())

	res, err = Call[*fakeProvider, string](context.Background(), chain, op)
	require.NoError(t, err)
	assert.Equal(t, "ok-from-b", res)
	assert.Equal(t, 1, a.calls) // a only ever tried once
	assert.Equal(t, 2, b.calls)
}

func TestChainSkipsUnavailable(t *testing.T) {
	a := &fakeProvider{id: "a", available: false}
	b := &fakeProvider{id: "b", available: true, result: "ok"}
	chain := NewChain[*fakeProvider](a, b)

	res, err := Call[*fakeProvider, string](context.Background(), chain, func(ctx context.Context, p *fakeProvider) (string, error) {
		return p.result, p.err
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
}

func TestChainAllFailedAggregatesErrors(t *testing.T) {
	a := &fakeProvider{id: "a", available: true, err: assert.AnError}
	b := &fakeProvider{id: "b", available: false}
	chain := NewChain[*fakeProvider](a, b)

	_, err := Call[*fakeProvider, string](context.Background(), chain, func(ctx context.Context, p *fakeProvider) (string, error) {
		return p.result, p.err
	})
	require.Error(t, err)
	var apf *AllProvidersFailedError
	require.ErrorAs(t, err, &apf)
	assert.Len(t, apf.Errors, 2)
}

func TestStickyProviderFailureFallsThrough(t *testing.T) {
	a := &fakeProvider{id: "a", available: true, result: "a-ok"}
	b := &fakeProvider{id: "b", available: true, result: "b-ok"}
	chain := NewChain[*fakeProvider](a, b)

	op := func(ctx context.Context, p *fakeProvider) (string, error) { return p.result, p.err }
	_, err := Call[*fakeProvider, string](context.Background(), chain, op)
	require.NoError(t, err)
	assert.Equal(t, "a", chain.currentSticky())

	a.err = assert.AnError
	res, err := Call[*fakeProvider, string](context.Background(), chain, op)
	require.NoError(t, err)
	assert.Equal(t, "b-ok", res)
	assert.Equal(t, "b", chain.currentSticky())
}

// Package provider implements an ordered list of providers tried in
// priority order, with sticky caching of the last successful choice, used
// for both embedding and LLM operations.
package provider

import (
	"context"
	"fmt"
	"sync"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

// Provider is the minimum surface every chain member exposes: an id used
// for error reporting and sticky-cache tracking, and a per-call
// availability probe.
type Provider interface {
	ID() string
	IsAvailable(ctx context.Context) bool
}

// AllProvidersFailedError aggregates one error per provider that was tried.
type AllProvidersFailedError struct {
	Errors map[string]error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all %d providers failed or were unavailable", len(e.Errors))
}

// Chain[P] runs operations against a priority-ordered list of providers of
// type P, serializing only the sticky-cache read/write, never the
// operation call itself.
type Chain[P Provider] struct {
	providers []P

	mu       sync.Mutex
	activeID string
}

// NewChain builds a chain tried in the given priority order.
func NewChain[P Provider](providers ...P) *Chain[P] {
	return &Chain[P]{providers: providers}
}

// Call tries the sticky-cached provider first, then walks the ordered
// list, probing availability before each attempt.
func Call[P Provider, R any](ctx context.Context, c *Chain[P], op func(context.Context, P) (R, error)) (R, error) {
	var zero R

	errs := make(map[string]error)
	tried := ""
	if p, ok := c.stickyProvider(); ok {
		res, err := op(ctx, p)
		if err == nil {
			return res, nil
		}
		errs[p.ID()] = err
		tried = p.ID()
		c.clearSticky(tried)
	}

	for _, p := range c.providers {
		if tried != "" && p.ID() == tried {
			continue // already tried above
		}
		if !p.IsAvailable(ctx) {
			errs[p.ID()] = cerr.New(cerr.ErrCodeProviderUnavailable, p.ID()+" is not available", nil)
			continue
		}
		res, err := op(ctx, p)
		if err != nil {
			errs[p.ID()] = err
			continue
		}
		c.setSticky(p.ID())
		return res, nil
	}

	return zero, cerr.Wrap(cerr.ErrCodeAllProvidersFailed, &AllProvidersFailedError{Errors: errs})
}

func (c *Chain[P]) stickyProvider() (P, bool) {
	c.mu.Lock()
	id := c.activeID
	c.mu.Unlock()

	var zero P
	if id == "" {
		return zero, false
	}
	for _, p := range c.providers {
		if p.ID() == id {
			return p, true
		}
	}
	return zero, false
}

func (c *Chain[P]) currentSticky() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

func (c *Chain[P]) setSticky(id string) {
	c.mu.Lock()
	c.activeID = id
	c.mu.Unlock()
}

func (c *Chain[P]) clearSticky(id string) {
	c.mu.Lock()
	if c.activeID == id {
		c.activeID = ""
	}
	c.mu.Unlock()
}

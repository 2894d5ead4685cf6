package provider

import (
	"context"
	"math"
	"net/http"
	"time"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

// EmbeddingProvider turns text into dense vectors. Dimension must be fixed
// for the lifetime of a provider instance.
type EmbeddingProvider interface {
	Provider
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// StaticEmbedder is a deterministic, dependency-free fallback: useful for
// tests and as the last resort in a chain so embedding never hard-fails
// when no real provider is configured.
type StaticEmbedder struct {
	id  string
	dim int
}

func NewStaticEmbedder(dim int) *StaticEmbedder {
	return &StaticEmbedder{id: "static", dim: dim}
}

func (s *StaticEmbedder) ID() string                               { return s.id }
func (s *StaticEmbedder) Name() string                             { return "static" }
func (s *StaticEmbedder) Dimension() int                           { return s.dim }
func (s *StaticEmbedder) IsAvailable(ctx context.Context) bool     { return true }

// Embed produces a deterministic hash-based pseudo-embedding so repeated
// runs are reproducible without any network dependency.
func (s *StaticEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = staticVector(t, s.dim)
	}
	return out, nil
}

func staticVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	var h uint32 = 2166136261
	for _, b := range []byte(text) {
		h ^= uint32(b)
		h *= 16777619
		v[int(h)%dim] += 1
	}
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	inv := float32(1) / float32(math.Sqrt(float64(norm)))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// HTTPEmbedder calls an Ollama-style local embedding HTTP endpoint.
type HTTPEmbedder struct {
	id       string
	name     string
	dim      int
	endpoint string
	model    string
	client   *http.Client
}

// NewHTTPEmbedder builds a provider against a local embedding server
// (e.g. Ollama) at endpoint, producing vectors of dim dimensions for model.
func NewHTTPEmbedder(id, name, endpoint, model string, dim int) *HTTPEmbedder {
	return &HTTPEmbedder{
		id: id, name: name, dim: dim, endpoint: endpoint, model: model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPEmbedder) ID() string     { return h.id }
func (h *HTTPEmbedder) Name() string   { return h.name }
func (h *HTTPEmbedder) Dimension() int { return h.dim }

// IsAvailable does a cheap reachability check against the endpoint root.
func (h *HTTPEmbedder) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return true
}

// Embed has no wire transport: it sends no request and always returns a
// ProviderUnavailable error, so a chain moves on to its next provider.
func (h *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, cerr.New(cerr.ErrCodeProviderUnavailable, h.name+" embed transport not configured", nil)
}

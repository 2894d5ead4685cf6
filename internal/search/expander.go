package search

import (
	"context"
	"encoding/json"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opencoderank/coderank/internal/provider"
)

// Expansion is the structured output of QueryExpander.
type Expansion struct {
	Original   string   `json:"original"`
	Synonyms   []string `json:"synonyms"`
	Related    []string `json:"related"`
	Variations []string `json:"variations"`
}

// QueryExpander produces {original, synonyms, related, variations} from an
// LLM, caching by normalized query with an LRU bound of at least 100
// entries.
type QueryExpander struct {
	chain *provider.Chain[provider.LLMProvider]
	cache *lru.Cache[string, Expansion]
}

// NewQueryExpander builds an expander with a cache of cacheSize entries,
// clamped to a minimum of 100.
func NewQueryExpander(chain *provider.Chain[provider.LLMProvider], cacheSize int) *QueryExpander {
	if cacheSize < 100 {
		cacheSize = 100
	}
	c, _ := lru.New[string, Expansion](cacheSize)
	return &QueryExpander{chain: chain, cache: c}
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Expand returns the cached expansion for query if present, otherwise asks
// the provider chain and caches the result.
func (e *QueryExpander) Expand(ctx context.Context, query string) (Expansion, error) {
	key := normalizeQuery(query)
	if v, ok := e.cache.Get(key); ok {
		return v, nil
	}

	prompt := expansionPrompt(query)
	text, err := provider.Call(ctx, e.chain, func(ctx context.Context, p provider.LLMProvider) (string, error) {
		return p.Complete(ctx, prompt)
	})
	if err != nil {
		return Expansion{}, err
	}

	exp := parseExpansion(text, query)
	e.cache.Add(key, exp)
	return exp, nil
}

func expansionPrompt(query string) string {
	return "Given the code search query below, respond with a JSON object " +
		`{"synonyms": [...], "related": [...], "variations": [...]} ` +
		"containing alternative phrasings useful for both lexical and semantic code search. " +
		"Query: " + query
}

// parseExpansion decodes the LLM's JSON reply; a reply that isn't valid
// JSON degrades to an expansion with no synonyms/related/variations rather
// than failing the whole query.
func parseExpansion(text, original string) Expansion {
	exp := Expansion{Original: original}
	var raw struct {
		Synonyms   []string `json:"synonyms"`
		Related    []string `json:"related"`
		Variations []string `json:"variations"`
	}
	trimmed := strings.TrimSpace(text)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(trimmed), &raw); err == nil {
		exp.Synonyms = raw.Synonyms
		exp.Related = raw.Related
		exp.Variations = raw.Variations
	}
	return exp
}

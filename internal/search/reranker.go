package search

import (
	"context"
	"strings"
	"unicode"

	"github.com/opencoderank/coderank/internal/store"
)

// sourceTreeMarkers are the path substrings considered "a source tree" for
// the source-tree boost. They are matched against the path with a leading
// "/" added, so a repository-relative path like "internal/x.go" counts.
var sourceTreeMarkers = []string{"/Sources/", "/src/", "/internal/", "/pkg/", "/cmd/"}

// standardProtocols is the closed set whose conformance triggers the
// standard-protocol extension demotion. The rule is about conformance
// metadata, not the implementation language, so the names stay general
// even though a Go codebase won't declare most of them.
var standardProtocols = map[string]struct{}{
	"Comparable": {}, "Equatable": {}, "Hashable": {}, "Codable": {},
	"Sendable": {}, "CustomStringConvertible": {},
}

// conceptualQueryWords triggers the "conceptual query" branch of the
// standard-protocol extension demotion.
var conceptualQueryWords = []string{"how", "what", "where", "why"}

// rerank applies four multiplicative re-ranking rules. Order doesn't
// matter since they're all multiplicative.
func (e *Engine) rerank(ctx context.Context, results []Result, query string) []Result {
	conceptual := isConceptualQuery(query)
	for i := range results {
		c := results[i].Chunk
		mult := 1.0

		if hasExactSymbol(c.Symbols, query) {
			if freq, err := e.chunks.GetTermFrequency(ctx, query); err == nil && freq < 10 {
				mult *= 2.5
			}
		}
		if inSourceTree(c.Path) {
			mult *= 1.1
		}
		if isPublicDeclaration(c.Signature, c.Symbols) {
			mult *= 1.1
		}
		if c.Kind == store.KindExtension && conformsToStandardProtocol(c.Conformances) && conceptual {
			mult *= 0.5
		}

		results[i].Score *= mult
	}
	return results
}

func hasExactSymbol(symbols []string, query string) bool {
	for _, s := range symbols {
		if s == query {
			return true
		}
	}
	return false
}

func inSourceTree(path string) bool {
	for _, marker := range sourceTreeMarkers {
		if strings.Contains("/"+path, marker) {
			return true
		}
	}
	return false
}

// isPublicDeclaration reports whether the chunk declares an exported
// (capitalized) identifier.
func isPublicDeclaration(signature string, symbols []string) bool {
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if unicode.IsUpper(rune(s[0])) {
			return true
		}
	}
	trimmed := strings.TrimSpace(signature)
	for _, kw := range []string{"func ", "type ", "var ", "const "} {
		if strings.HasPrefix(trimmed, kw) {
			rest := strings.TrimSpace(trimmed[len(kw):])
			rest = strings.TrimPrefix(rest, "(")
			if rest != "" && unicode.IsUpper(rune(rest[0])) {
				return true
			}
		}
	}
	return false
}

func conformsToStandardProtocol(conformances []string) bool {
	for _, c := range conformances {
		if _, ok := standardProtocols[c]; ok {
			return true
		}
	}
	return false
}

func isConceptualQuery(query string) bool {
	lower := strings.ToLower(query)
	for _, w := range conceptualQueryWords {
		if strings.HasPrefix(lower, w) || strings.Contains(lower, " "+w+" ") || strings.Contains(lower, " "+w) {
			return true
		}
	}
	return false
}

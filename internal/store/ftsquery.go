package store

import (
	"regexp"
	"strings"
)

// preparedQueryPattern detects a syntactically pre-formed FTS expression:
// one or more quoted terms, each with an optional trailing '*', separated
// by whitespace.
var preparedQueryPattern = regexp.MustCompile(`^("[\p{L}\p{N}]+"\*?(\s+|$))+$`)

// isPreparedQuery reports whether q should be passed through to the FTS
// engine verbatim rather than sanitized.
func isPreparedQuery(q string) bool {
	return preparedQueryPattern.MatchString(q)
}

// sanitizerStrip is the set of characters a freeform query has stripped
// before tokenization: quotes, parentheses, colons, wildcards, and the
// FTS boolean operator characters.
var sanitizerStrip = strings.NewReplacer(
	`"`, " ",
	"'", " ",
	"(", " ",
	")", " ",
	":", " ",
	"*", " ",
	"^", " ",
)

var booleanOperators = map[string]struct{}{
	"AND": {}, "OR": {}, "NOT": {}, "NEAR": {},
}

// buildFTSQuery turns a caller-supplied query string into the expression to
// hand the FTS engine, either passing a prepared query through verbatim or
// sanitizing a freeform one into a prefix-OR expression.
// sanitize(sanitize(q)) == sanitize(q): re-running this on an
// already-sanitized prefix-OR query strips nothing further and reproduces
// the same token set.
func buildFTSQuery(q string) string {
	if isPreparedQuery(q) {
		return q
	}
	return sanitizeToPrefixOR(q)
}

// sanitizeToPrefixOR strips quoting/boolean punctuation and builds a
// prefix-OR expression: each surviving token is matched as a prefix, and
// multi-token queries OR the terms together.
func sanitizeToPrefixOR(q string) string {
	stripped := sanitizerStrip.Replace(q)
	fields := strings.Fields(stripped)

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, isOp := booleanOperators[strings.ToUpper(f)]; isOp {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		return ""
	}

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"*`
	}
	return strings.Join(quoted, " OR ")
}

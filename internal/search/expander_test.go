package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseExpansionValidJSON(t *testing.T) {
	text := `{"synonyms": ["alpha"], "related": ["beta"], "variations": ["gamma"]}`
	exp := parseExpansion(text, "query")
	assert.Equal(t, "query", exp.Original)
	assert.Equal(t, []string{"alpha"}, exp.Synonyms)
	assert.Equal(t, []string{"beta"}, exp.Related)
	assert.Equal(t, []string{"gamma"}, exp.Variations)
}

func TestParseExpansionWithSurroundingText(t *testing.T) {
	text := "Sure, here you go:\n{\"synonyms\": [\"x\"]}\nhope that helps"
	exp := parseExpansion(text, "q")
	assert.Equal(t, []string{"x"}, exp.Synonyms)
}

func TestParseExpansionInvalidJSONDegradesGracefully(t *testing.T) {
	exp := parseExpansion("not json at all", "q")
	assert.Equal(t, "q", exp.Original)
	assert.Empty(t, exp.Synonyms)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "hello world", normalizeQuery("  Hello World  "))
}

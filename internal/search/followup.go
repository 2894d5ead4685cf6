package search

import (
	"context"
	"regexp"
	"strings"

	"github.com/opencoderank/coderank/internal/provider"
)

// FollowUpCategory is the closed set of suggestion categories.
type FollowUpCategory string

const (
	CategoryHowTo         FollowUpCategory = "how-to"
	CategoryDeeper        FollowUpCategory = "deeper"
	CategoryTesting       FollowUpCategory = "testing"
	CategoryRelated       FollowUpCategory = "related"
	CategoryConfiguration FollowUpCategory = "configuration"
	CategoryExploration   FollowUpCategory = "exploration"
)

// FollowUp is one categorized suggestion.
type FollowUp struct {
	Query    string
	Category FollowUpCategory
}

// FollowUpGenerator returns categorized follow-up query suggestions for a
// completed search.
type FollowUpGenerator struct {
	chain *provider.Chain[provider.LLMProvider]
}

func NewFollowUpGenerator(chain *provider.Chain[provider.LLMProvider]) *FollowUpGenerator {
	return &FollowUpGenerator{chain: chain}
}

// Generate asks the LLM for follow-up queries and classifies each line by
// regex.
func (g *FollowUpGenerator) Generate(ctx context.Context, query string, results []Result) ([]FollowUp, error) {
	prompt := followUpPrompt(query, results)
	text, err := provider.Call(ctx, g.chain, func(ctx context.Context, p provider.LLMProvider) (string, error) {
		return p.Complete(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	return classifyFollowUps(text), nil
}

func followUpPrompt(query string, results []Result) string {
	var b strings.Builder
	b.WriteString("The user searched for: " + query + "\n")
	b.WriteString("Suggest 3-5 natural follow-up questions, one per line, no numbering.\n")
	return b.String()
}

// classifierRules are tried in order; the first match wins. A line
// matching none of them is classified as exploration, the catch-all
// category for open-ended follow-ups.
var classifierRules = []struct {
	category FollowUpCategory
	pattern  *regexp.Regexp
}{
	{CategoryHowTo, regexp.MustCompile(`(?i)^how (do|can|would) `)},
	{CategoryTesting, regexp.MustCompile(`(?i)\b(test|tests|testing|mock|fixture)\b`)},
	{CategoryConfiguration, regexp.MustCompile(`(?i)\b(config|configure|setting|option|flag|env)\b`)},
	{CategoryDeeper, regexp.MustCompile(`(?i)\b(why|internals?|implement(ation|ed)?|under the hood)\b`)},
	{CategoryRelated, regexp.MustCompile(`(?i)\b(similar|related|other|alternative)\b`)},
}

func classifyFollowUps(text string) []FollowUp {
	var out []FollowUp
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" {
			continue
		}
		out = append(out, FollowUp{Query: line, Category: classify(line)})
	}
	return out
}

func classify(line string) FollowUpCategory {
	for _, rule := range classifierRules {
		if rule.pattern.MatchString(line) {
			return rule.category
		}
	}
	return CategoryExploration
}

package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/opencoderank/coderank/internal/provider"
)

// Synthesis is ResultSynthesizer's structured output.
type Synthesis struct {
	Summary    string
	Insights   []string
	References []string
	Confidence float64
}

// ResultSynthesizer formats the top search results into a structured
// synthesis via an LLM.
type ResultSynthesizer struct {
	chain *provider.Chain[provider.LLMProvider]
}

func NewResultSynthesizer(chain *provider.Chain[provider.LLMProvider]) *ResultSynthesizer {
	return &ResultSynthesizer{chain: chain}
}

// Synthesize asks the LLM to summarize results and parses its labeled
// response. A response with no recognizable labels falls back to treating
// the whole text as the summary.
func (s *ResultSynthesizer) Synthesize(ctx context.Context, query string, results []Result) (Synthesis, error) {
	prompt := synthesisPrompt(query, results)
	text, err := provider.Call(ctx, s.chain, func(ctx context.Context, p provider.LLMProvider) (string, error) {
		return p.Complete(ctx, prompt)
	})
	if err != nil {
		return Synthesis{}, err
	}
	return parseSynthesis(text), nil
}

func synthesisPrompt(query string, results []Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nTop results:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s:%d %s\n", i+1, r.Chunk.Path, r.Chunk.StartLine, r.Chunk.Signature)
	}
	b.WriteString("\nRespond with labeled sections:\nSUMMARY: <one paragraph>\nINSIGHTS: <bullet list>\nREFERENCES: <file:line list>\nCONFIDENCE: <0 to 1>\n")
	return b.String()
}

var synthesisLabels = []string{"SUMMARY:", "INSIGHTS:", "REFERENCES:", "CONFIDENCE:"}

// parseSynthesis recognizes labeled sections in any order and falls back to
// treating the entire response as the summary when no label is found.
func parseSynthesis(text string) Synthesis {
	sections := splitLabeledSections(text, synthesisLabels)
	if len(sections) == 0 {
		return Synthesis{Summary: strings.TrimSpace(text)}
	}

	out := Synthesis{}
	if v, ok := sections["SUMMARY:"]; ok {
		out.Summary = strings.TrimSpace(v)
	}
	if v, ok := sections["INSIGHTS:"]; ok {
		out.Insights = splitListLines(v)
	}
	if v, ok := sections["REFERENCES:"]; ok {
		out.References = splitListLines(v)
	}
	if v, ok := sections["CONFIDENCE:"]; ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(firstLineOf(v)), 64); err == nil {
			out.Confidence = clamp01(f)
		}
	}
	return out
}

// splitLabeledSections scans text for any of labels (case-sensitive, as
// emitted by the prompt) and returns the text following each label up to
// the next recognized label.
func splitLabeledSections(text string, labels []string) map[string]string {
	type hit struct {
		label string
		pos   int
	}
	var hits []hit
	for _, l := range labels {
		if idx := strings.Index(text, l); idx >= 0 {
			hits = append(hits, hit{label: l, pos: idx})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].pos < hits[i].pos {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	out := make(map[string]string, len(hits))
	for i, h := range hits {
		start := h.pos + len(h.label)
		end := len(text)
		if i+1 < len(hits) {
			end = hits[i+1].pos
		}
		out[h.label] = text[start:end]
	}
	return out
}

func splitListLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "-")
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func firstLineOf(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

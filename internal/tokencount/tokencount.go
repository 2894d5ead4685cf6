// Package tokencount computes Chunk.TokenCount using a real BPE tokenizer
// rather than a whitespace heuristic, so token budgets reported to callers
// match what an LLM-based QueryExpander/ResultSynthesizer would actually
// consume.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter wraps a cached tiktoken encoding. cl100k_base is the encoding
// shared by the model families coderank's LLM providers target (GPT-4
// class OpenAI models); it's also a reasonable proxy for token pressure
// against Anthropic/Gemini models, none of which expose a public
// tokenizer.
type Counter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// New builds a Counter. Encoding load is lazy: errors surface on first Count.
func New() *Counter {
	return &Counter{}
}

func (c *Counter) ensure() (*tiktoken.Tiktoken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc != nil {
		return c.enc, nil
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	c.enc = enc
	return enc, nil
}

// Count returns the BPE token count for text, falling back to a
// whitespace-split approximation if the encoding can't be loaded (e.g. no
// network access to fetch the BPE ranks file on first use).
func (c *Counter) Count(text string) int {
	enc, err := c.ensure()
	if err != nil {
		return approximateCount(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func approximateCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}

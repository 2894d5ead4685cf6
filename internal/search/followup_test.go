package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFollowUps(t *testing.T) {
	cases := map[string]FollowUpCategory{
		"How do I configure the batcher?":       CategoryHowTo,
		"What are the tests for this module?":   CategoryTesting,
		"How can I set the config option?":      CategoryHowTo,
		"Why is this implemented this way?":     CategoryDeeper,
		"Are there similar functions elsewhere?": CategoryRelated,
		"Tell me more about this package":       CategoryExploration,
	}
	for line, want := range cases {
		assert.Equal(t, want, classify(line), line)
	}
}

func TestClassifyFollowUpsParsesLines(t *testing.T) {
	text := "- How do I use this?\n* What about tests?\n1. Something else entirely\n"
	out := classifyFollowUps(text)
	assert.Len(t, out, 3)
	assert.Equal(t, CategoryHowTo, out[0].Category)
	assert.Equal(t, CategoryTesting, out[1].Category)
}

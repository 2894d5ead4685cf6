package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSynthesisLabeledSections(t *testing.T) {
	text := "SUMMARY: does the thing\nINSIGHTS:\n- one\n- two\nREFERENCES:\n- a.go:10\nCONFIDENCE: 0.8\n"
	s := parseSynthesis(text)
	assert.Equal(t, "does the thing", s.Summary)
	assert.Equal(t, []string{"one", "two"}, s.Insights)
	assert.Equal(t, []string{"a.go:10"}, s.References)
	assert.InDelta(t, 0.8, s.Confidence, 1e-9)
}

func TestParseSynthesisFallsBackToWholeText(t *testing.T) {
	text := "Just a plain paragraph with no labels."
	s := parseSynthesis(text)
	assert.Equal(t, text, s.Summary)
	assert.Empty(t, s.Insights)
}

func TestParseSynthesisClampsConfidence(t *testing.T) {
	text := "SUMMARY: x\nCONFIDENCE: 1.5\n"
	s := parseSynthesis(text)
	assert.Equal(t, 1.0, s.Confidence)
}

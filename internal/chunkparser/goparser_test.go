package chunkparser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencoderank/coderank/internal/store"
)

const sampleGoSource = `package sample

// Greeter says hello.
type Greeter struct {
	Name string
}

// Greet returns a greeting for the Greeter.
func (g *Greeter) Greet() string {
	return "hello " + g.Name
}

func Add(a, b int) int {
	return a + b
}
`

func TestGoParserExtractsDeclarations(t *testing.T) {
	p := NewGoParser()
	res, err := p.Parse(context.Background(), []byte(sampleGoSource), "sample.go", "filehash")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	require.Len(t, res.Chunks, 3)

	var kinds []store.Kind
	for _, c := range res.Chunks {
		kinds = append(kinds, c.Kind)
		assert.Equal(t, "filehash", c.FileHash)
		assert.NotEmpty(t, c.ContentHash)
		assert.Equal(t, "go", c.Language)
	}
	assert.Contains(t, kinds, store.KindType)
	assert.Contains(t, kinds, store.KindMethod)
	assert.Contains(t, kinds, store.KindFunction)
}

func TestGoParserCapturesDocComment(t *testing.T) {
	p := NewGoParser()
	res, err := p.Parse(context.Background(), []byte(sampleGoSource), "sample.go", "filehash")
	require.NoError(t, err)
	found := false
	for _, c := range res.Chunks {
		if c.Kind == store.KindType {
			assert.Contains(t, c.DocComment, "Greeter says hello")
			found = true
		}
	}
	assert.True(t, found)
}

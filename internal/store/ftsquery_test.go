package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPreparedQuery(t *testing.T) {
	assert.True(t, isPreparedQuery(`"foo"`))
	assert.True(t, isPreparedQuery(`"foo"* "bar"`))
	assert.True(t, isPreparedQuery(`"USearchError"*`))
	assert.False(t, isPreparedQuery(`foo bar`))
	assert.False(t, isPreparedQuery(`"foo" AND "bar"`))
	assert.False(t, isPreparedQuery(``))
}

func TestSanitizeToPrefixOR(t *testing.T) {
	assert.Equal(t, `"foo"* OR "bar"*`, sanitizeToPrefixOR(`foo bar`))
	assert.Equal(t, `"foo"*`, sanitizeToPrefixOR(`"foo":`))
	assert.Equal(t, "", sanitizeToPrefixOR(`AND OR NOT`))
	assert.Equal(t, "", sanitizeToPrefixOR(`  `))
}

func TestSanitizeIdempotent(t *testing.T) {
	once := buildFTSQuery(`foo bar`)
	twice := buildFTSQuery(once)
	assert.Equal(t, once, twice)
}

func TestBuildFTSQueryPassesThroughPrepared(t *testing.T) {
	prepared := `"foo"* "bar"`
	assert.Equal(t, prepared, buildFTSQuery(prepared))
}

package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApproximateCount(t *testing.T) {
	assert.Equal(t, 3, approximateCount("foo bar baz"))
	assert.Equal(t, 0, approximateCount("   "))
	assert.Equal(t, 1, approximateCount("solo"))
}

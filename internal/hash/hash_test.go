package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringDeterministic(t *testing.T) {
	a := String("func main() {}")
	b := String("func main() {}")
	assert.Equal(t, a, b)
	assert.Len(t, a, Len)
}

func TestStringDiffersOnContent(t *testing.T) {
	assert.NotEqual(t, String("a"), String("b"))
}

func TestKnownVector(t *testing.T) {
	// sha256("") = e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", String(""))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(String("x")))
	assert.False(t, Valid("not-a-hash"))
	assert.False(t, Valid(""))
	assert.False(t, Valid(String("x")+"0")) // too long
}

package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTTY_BufferIsNeverATerminal(t *testing.T) {
	// Given: an in-memory buffer standing in for captured command output
	var buf bytes.Buffer

	// When: checking whether it's a TTY
	// Then: it never is, regardless of the real process's stdio
	assert.False(t, IsTTY(&buf))
}

func TestIsTTY_DevNullIsNotATerminal(t *testing.T) {
	f, err := os.Open(os.DevNull)
	assert.NoError(t, err)
	defer f.Close()

	assert.False(t, IsTTY(f))
}

func TestDetectNoColor_RespectsEnvVar(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDetectNoColor_UnsetByDefault(t *testing.T) {
	os.Unsetenv("NO_COLOR")
	assert.False(t, DetectNoColor())
}

func TestDetectCI_RespectsEnvVar(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestColorizer_DisabledOnNonTTYPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	c := NewColorizer(&buf)

	assert.False(t, c.Enabled())
	assert.Equal(t, "hello", c.Bold("hello"))
	assert.Equal(t, "hello", c.Dim("hello"))
	assert.Equal(t, "hello", c.Green("hello"))
	assert.Equal(t, "hello", c.Cyan("hello"))
}

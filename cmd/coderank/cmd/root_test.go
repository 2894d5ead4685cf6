package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"index", "search", "serve", "stats"} {
		assert.True(t, names[want], "expected %q subcommand to be registered", want)
	}
}

func TestNewRootCmd_Use(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "coderank", cmd.Use)
}

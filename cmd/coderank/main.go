// Package main provides the entry point for the coderank CLI.
package main

import (
	"os"

	"github.com/opencoderank/coderank/cmd/coderank/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

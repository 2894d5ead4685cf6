// Package cmd provides the CLI commands for coderank: one cobra root
// command per process, one file per subcommand.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opencoderank/coderank/pkg/version"
)

// NewRootCmd creates the root command for the coderank CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coderank",
		Short: "Local-first semantic code search engine",
		Long: `coderank indexes a codebase into a content-hashed chunk store and
HNSW vector index, then serves hybrid (lexical + semantic) search over it
via the CLI or an MCP JSON-RPC server for AI coding assistants.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("coderank version {{.Version}}\n")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

// Execute runs the root command, returning any error for the caller to
// report and exit on.
func Execute() error {
	return NewRootCmd().Execute()
}

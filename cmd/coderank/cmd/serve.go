package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencoderank/coderank/internal/app"
	"github.com/opencoderank/coderank/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Run the MCP JSON-RPC server over stdio",
		Long: `Start the Model Context Protocol server, exposing index_codebase,
search_code, and index_status as JSON-RPC tools over stdio. Intended to
be launched by an MCP client (Claude Code, Cursor), not run interactively.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runServe(cmd, root)
		},
	}
	return cmd
}

func runServe(cmd *cobra.Command, root string) error {
	a, err := app.Open(cmd.Context(), root)
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	defer a.Close()

	srv := mcpserver.New(a)
	return srv.Run(cmd.Context())
}

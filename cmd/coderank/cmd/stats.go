package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencoderank/coderank/internal/app"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats [path]",
		Short: "Show index statistics",
		Long:  `Display cumulative indexing statistics for a project's index directory.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runStats(cmd, root, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, root string, jsonOutput bool) error {
	a, err := app.Open(cmd.Context(), root)
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	defer a.Close()

	stats := a.Manager.Statistics()

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed files: %d\nSkipped files: %d\nTotal chunks:  %d\nErrors:        %d\n",
		stats.IndexedFiles, stats.SkippedFiles, stats.TotalChunks, stats.Errors)
	return nil
}

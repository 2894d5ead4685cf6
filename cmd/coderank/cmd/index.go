package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencoderank/coderank/internal/app"
	"github.com/opencoderank/coderank/internal/ui"
)

type indexOptions struct {
	force bool
	json  bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a codebase",
		Long: `Walk the given directory (default: current directory), parse every file
whose content hash changed since the last run, and commit the result to
the chunk and vector stores.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runIndex(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "reparse every file even if unchanged")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output as JSON")
	return cmd
}

func runIndex(cmd *cobra.Command, root string, opts indexOptions) error {
	a, err := app.Open(cmd.Context(), root)
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	c := ui.NewColorizer(out)
	showProgress := ui.IsTTY(out) && !opts.json
	if showProgress {
		fmt.Fprintf(out, "%s %s\n", c.Dim("indexing"), root)
	}

	stats, err := a.Index(cmd.Context(), opts.force)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintf(out, "%s %d files (%d skipped, %s chunks) out of %d total.\n",
		c.Green("Indexed"), stats.IndexedFiles, stats.SkippedFiles,
		c.Cyan(fmt.Sprintf("%d", stats.Chunks)), stats.TotalFiles)
	for _, e := range stats.Errors {
		fmt.Fprintln(os.Stderr, "error:", e)
	}
	return nil
}

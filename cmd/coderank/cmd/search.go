package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencoderank/coderank/internal/app"
	"github.com/opencoderank/coderank/internal/search"
	"github.com/opencoderank/coderank/internal/ui"
)

type searchOptions struct {
	limit      int
	pathFilter string
	extensions []string
	expand     bool
	synthesize bool
	followUps  bool
	format     string // "text" or "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Run hybrid (lexical + semantic) search over an already-indexed
codebase, fusing results with Reciprocal Rank Fusion.

Examples:
  coderank search "authentication middleware"
  coderank search "handleRequest" --limit 5
  coderank search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().StringVar(&opts.pathFilter, "path", "", "substring filter against each chunk's file path")
	cmd.Flags().StringSliceVar(&opts.extensions, "ext", nil, "restrict results to these file extensions")
	cmd.Flags().BoolVar(&opts.expand, "expand", false, "run LLM-assisted query expansion")
	cmd.Flags().BoolVar(&opts.synthesize, "synthesize", false, "run LLM-assisted result synthesis")
	cmd.Flags().BoolVar(&opts.followUps, "follow-ups", false, "suggest follow-up queries based on the results")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text or json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	a, err := app.Open(cmd.Context(), ".")
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	defer a.Close()

	so := search.DefaultOptions()
	so.Limit = opts.limit
	so.PathFilter = opts.pathFilter
	so.ExtensionsFilter = opts.extensions
	so.Expand = opts.expand
	so.Synthesize = opts.synthesize
	so.FollowUps = opts.followUps
	so.SemanticWeight = a.Config.Search.SemanticWeight
	so.RRFConstant = a.Config.Search.RRFConstant
	if a.Config.Search.MultiHopEnabled {
		so.MultiHopDepth = a.Config.Search.MultiHopDepth
	}

	outcome, err := a.Engine.Search(cmd.Context(), query, so)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	printResultsText(cmd, outcome)
	return nil
}

func printResultsText(cmd *cobra.Command, outcome search.Outcome) {
	out := cmd.OutOrStdout()
	c := ui.NewColorizer(out)
	if len(outcome.Results) == 0 {
		fmt.Fprintln(out, "No results.")
		return
	}
	for i, r := range outcome.Results {
		loc := fmt.Sprintf("%s:%d-%d", r.Chunk.Path, r.Chunk.StartLine, r.Chunk.EndLine)
		fmt.Fprintf(out, "%d. %s  [%s]  score=%s\n",
			i+1, c.Bold(loc), r.Chunk.Kind, c.Cyan(fmt.Sprintf("%.4f", r.Score)))
		if r.Chunk.Signature != "" {
			fmt.Fprintf(out, "   %s\n", c.Dim(r.Chunk.Signature))
		}
	}
	if outcome.Synthesis != nil {
		fmt.Fprintf(out, "\n%s %s\n", c.Bold("Summary:"), outcome.Synthesis.Summary)
	}
	if len(outcome.FollowUps) > 0 {
		fmt.Fprintf(out, "\n%s\n", c.Bold("Follow-ups:"))
		for _, fu := range outcome.FollowUps {
			fmt.Fprintf(out, "  - %s %s\n", fu.Query, c.Dim("["+string(fu.Category)+"]"))
		}
	}
}

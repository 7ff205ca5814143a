package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/index"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

// queryOptions holds CLI flags for query.
type queryOptions struct {
	index      string
	topK       int
	minScore   float64
	noKeywords bool
	jsonOutput bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search indexed documents",
		Long: `Search one index, or every index, with a natural-language query.

Each result blends semantic similarity with a keyword score. Results from
several indexes are merged by score.

Examples:
  ragindex query "how are widgets configured"
  ragindex query "retry policy" --index docs --top-k 10
  ragindex query "release notes" --no-keywords --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.index, "index", "i", "", "Index to search (default: all indexes)")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results scoring below this value")
	cmd.Flags().BoolVar(&opts.noKeywords, "no-keywords", false, "Semantic search only")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, text string, opts queryOptions) error {
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	q := queryOptionsFromConfig(a, text)
	if opts.topK > 0 {
		q.TopK = opts.topK
	}
	if opts.minScore > 0 {
		q.MinScore = opts.minScore
	}
	q.IncludeKeywords = !opts.noKeywords

	results, err := a.registry.Query(ctx, opts.index, q)
	if err != nil {
		return err
	}
	slog.Debug("query_complete",
		slog.String("index", opts.index),
		slog.Int("results", len(results)))

	printer := ui.NewPrinter(cmd.OutOrStdout(), noColor)
	if opts.jsonOutput {
		if results == nil {
			results = []*index.SearchResult{}
		}
		return printer.RenderJSON(results)
	}
	printer.RenderResults(text, results)
	return nil
}

// queryOptionsFromConfig applies the configured search defaults.
func queryOptionsFromConfig(a *app, text string) index.QueryOptions {
	q := index.NewQueryOptions(text)
	q.TopK = a.cfg.Search.TopK
	q.MinScore = a.cfg.Search.MinScore
	q.SemanticWeight = a.cfg.Search.SemanticWeight
	q.KeywordWeight = a.cfg.Search.KeywordWeight
	return q
}

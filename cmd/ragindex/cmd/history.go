package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/history"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

const defaultHistoryLimit = 20

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded queries",
		Long: `Every query run through 'ragindex query' or the MCP server is recorded
with its results, unless history is disabled in the config.`,
		Example: `  # Most recent queries
  ragindex history list

  # One query with its results
  ragindex history show 42

  # Queries mentioning a term
  ragindex history search widgets

  # Drop entries older than 30 days
  ragindex history clear --older-than 30`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistorySearchCmd())
	cmd.AddCommand(newHistoryStatsCmd())
	cmd.AddCommand(newHistoryClearCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var (
		limit          int
		indexName      string
		includeResults bool
		jsonOutput     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent queries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hist, err := requireHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = hist.Close() }()

			entries, err := hist.GetHistory(cmd.Context(), limit, indexName, includeResults)
			if err != nil {
				return err
			}
			return renderEntries(cmd, entries, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "Maximum entries")
	cmd.Flags().StringVarP(&indexName, "index", "i", "", "Only queries against this index (\"*\" for all-index queries)")
	cmd.Flags().BoolVar(&includeResults, "results", false, "Include result summaries (JSON output)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded query and its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return errors.ValidationError(fmt.Sprintf("invalid query id %q", args[0]), err)
			}

			hist, err := requireHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = hist.Close() }()

			entry, err := hist.GetQuery(cmd.Context(), id)
			if err != nil {
				return err
			}
			if entry == nil {
				return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("no recorded query with id %d", id), nil).
					WithSuggestion("Run: ragindex history list")
			}

			printer := ui.NewPrinter(cmd.OutOrStdout(), noColor)
			if jsonOutput {
				return printer.RenderJSON(entry)
			}
			printer.RenderEntry(entry)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newHistorySearchCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Find recorded queries containing a term",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, err := requireHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = hist.Close() }()

			entries, err := hist.SearchHistory(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return renderEntries(cmd, entries, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "Maximum entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newHistoryStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query counts and latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hist, err := requireHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = hist.Close() }()

			st, err := hist.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printer := ui.NewPrinter(cmd.OutOrStdout(), noColor)
			if jsonOutput {
				return printer.RenderJSON(st)
			}
			printer.RenderHistoryStats(st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newHistoryClearCmd() *cobra.Command {
	var olderThan int

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete recorded queries",
		Long:  `Delete every recorded query, or only those older than --older-than days.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan < 0 {
				return errors.ValidationError("--older-than must not be negative", nil)
			}
			hist, err := requireHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = hist.Close() }()

			n, err := hist.Clear(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d queries\n", n)
			return err
		},
	}

	cmd.Flags().IntVar(&olderThan, "older-than", 0, "Only delete entries older than this many days (0 deletes all)")

	return cmd
}

func renderEntries(cmd *cobra.Command, entries []*history.Entry, jsonOutput bool) error {
	printer := ui.NewPrinter(cmd.OutOrStdout(), noColor)
	if jsonOutput {
		if entries == nil {
			entries = []*history.Entry{}
		}
		return printer.RenderJSON(entries)
	}
	printer.RenderHistory(entries)
	return nil
}

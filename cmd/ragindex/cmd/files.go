package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/index"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

// defaultFilesLimit bounds the files listed per index.
const defaultFilesLimit = 100

func newFilesCmd() *cobra.Command {
	var (
		indexName  string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "files [pattern]",
		Short: "List indexed files",
		Long: `List the files held by an index. With a pattern, only files whose path
contains it (case-insensitive) are shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) > 0 {
				pattern = args[0]
			}
			return runFiles(cmd.Context(), cmd, indexName, pattern, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&indexName, "index", "i", "", "Index to list (default: all indexes)")
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultFilesLimit, "Maximum files per index (0 for no limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runFiles(ctx context.Context, cmd *cobra.Command, indexName, pattern string, limit int, jsonOutput bool) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	names, err := a.indexNames(indexName)
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout(), noColor)
	byIndex := make(map[string][]*index.FileInfo, len(names))
	for _, n := range names {
		m, err := a.registry.Get(n)
		if err != nil {
			return err
		}
		var files []*index.FileInfo
		if pattern == "" {
			files, err = m.ListFiles(ctx)
		} else {
			files, err = m.SearchFiles(ctx, pattern)
		}
		if err != nil {
			return err
		}

		total := len(files)
		if limit > 0 && total > limit {
			files = files[:limit]
		}
		if jsonOutput {
			if files == nil {
				files = []*index.FileInfo{}
			}
			byIndex[n] = files
			continue
		}
		if len(names) > 1 {
			printer.Heading(n)
		}
		printer.RenderFiles(files, total)
	}

	if jsonOutput {
		return printer.RenderJSON(byIndex)
	}
	return nil
}

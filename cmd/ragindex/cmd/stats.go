package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/async"
	"github.com/Aman-CERP/ragindex/internal/index"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats [name]",
		Short: "Show index statistics",
		Long: `Show file, chunk and vector counts, on-disk size, vector backend and
embedding model for one index, or for every index.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return runStats(cmd.Context(), cmd, name, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, name string, jsonOutput bool) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	names, err := a.indexNames(name)
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout(), noColor)
	all := make([]*index.Stats, 0, len(names))
	for _, n := range names {
		m, err := a.registry.Get(n)
		if err != nil {
			return err
		}
		st, err := m.Stats(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			all = append(all, st)
			continue
		}

		var snap *async.IndexProgressSnapshot
		if p := m.Progress(); p != nil {
			s := p.Snapshot()
			snap = &s
		}
		printer.RenderStats(st, snap)
	}

	if jsonOutput {
		return printer.RenderJSON(all)
	}
	return nil
}

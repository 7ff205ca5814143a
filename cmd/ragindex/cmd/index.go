package cmd

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/index"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		name string
		pf   progressFlags
	)

	cmd := &cobra.Command{
		Use:   "index <dir>",
		Short: "Index a directory of documents",
		Long: `Index every supported file under a directory into a named index.

Files are split into overlapping chunks, embedded and stored with their
keyword index. Unchanged files are skipped, so re-running the command only
processes what changed. The index name defaults to the directory name.

Examples:
  ragindex index ./docs
  ragindex index ~/notes --name notes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, args[0], name, pf)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Index name (default: directory name)")
	pf.register(cmd)

	return cmd
}

// progressFlags selects the progress renderer for index and refresh.
type progressFlags struct {
	plain bool
	bar   bool
}

func (pf *progressFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&pf.plain, "plain", false, "Plain text progress instead of the interactive display")
	cmd.Flags().BoolVar(&pf.bar, "progress-bar", false, "Single-line progress bar instead of the interactive display")
}

func (pf progressFlags) renderer(cmd *cobra.Command, title string) ui.Renderer {
	return ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithTitle(title),
		ui.WithForcePlain(pf.plain),
		ui.WithProgressBar(pf.bar),
		ui.WithNoColor(noColor)))
}

func runIndex(ctx context.Context, cmd *cobra.Command, dir, name string, pf progressFlags) error {
	abs, err := resolveDir(dir)
	if err != nil {
		return err
	}
	if name == "" {
		name = defaultIndexName(abs)
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	m, err := a.registry.Open(name)
	if err != nil {
		return err
	}

	slog.Info("index_started", slog.String("index", name), slog.String("dir", abs))
	renderer := pf.renderer(cmd, "Indexing "+name)

	result, err := followPass(ctx, m, renderer, func(ctx context.Context) (*index.IndexResult, error) {
		return m.IndexDirectory(ctx, abs)
	})
	if err != nil {
		slog.Error("index_failed", errors.LogAttrs(err)...)
		return err
	}

	slog.Info("index_complete",
		slog.String("index", name),
		slog.Int("files", result.FilesIndexed),
		slog.Int("chunks", result.ChunksCreated),
		slog.Duration("duration", result.Duration))
	return nil
}

// followPass runs pass while rendering the index's progress, then reports
// per-file failures and the summary.
func followPass(ctx context.Context, m *index.Manager, r ui.Renderer,
	pass func(ctx context.Context) (*index.IndexResult, error)) (*index.IndexResult, error) {
	if err := r.Start(ctx); err != nil {
		return nil, err
	}

	followCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ui.Follow(followCtx, m.Progress, r, ui.DefaultRefreshInterval)
	}()

	result, err := pass(ctx)
	cancel()
	wg.Wait()

	if p := m.Progress(); p != nil {
		r.Update(p.Snapshot())
	}
	if result != nil {
		for _, fe := range result.Errors {
			r.AddError(ui.ErrorEvent{File: fe.Path, Err: stderrors.New(fe.Error)})
		}
	}
	if err != nil {
		_ = r.Stop()
		return result, err
	}

	stats := ui.CompletionStats{
		Index:     m.Name(),
		Files:     result.FilesIndexed,
		Unchanged: result.FilesUnchanged,
		Removed:   result.FilesRemoved,
		Failed:    result.FilesFailed,
		Chunks:    result.ChunksCreated,
		Duration:  result.Duration,
	}
	if st, err := m.Stats(ctx); err == nil {
		stats.Embedder = ui.EmbedderInfo{Model: st.Model, Dimensions: st.Dimension}
	}
	r.Complete(stats)
	return result, r.Stop()
}

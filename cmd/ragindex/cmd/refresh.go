package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/index"
)

func newRefreshCmd() *cobra.Command {
	var pf progressFlags

	cmd := &cobra.Command{
		Use:   "refresh <name|dir>",
		Short: "Re-index changed files and drop deleted ones",
		Long: `Bring an index up to date with its source directory.

Changed files are re-indexed, unchanged files are skipped and files that
no longer exist are removed. The argument is an index name, or a directory
some index was built from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRefresh(ctx, cmd, args[0], pf)
		},
	}

	pf.register(cmd)

	return cmd
}

func runRefresh(ctx context.Context, cmd *cobra.Command, target string, pf progressFlags) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	name, dir, err := a.resolveTarget(target)
	if err != nil {
		return err
	}
	m, err := a.registry.Get(name)
	if err != nil {
		return err
	}

	renderer := pf.renderer(cmd, "Refreshing "+name)
	_, err = followPass(ctx, m, renderer, func(ctx context.Context) (*index.IndexResult, error) {
		return m.Refresh(ctx, dir)
	})
	if err != nil {
		slog.Error("refresh_failed", errors.LogAttrs(err)...)
	}
	return err
}

// resolveTarget maps an index name or a source directory to the index name
// and the directory to refresh from.
func (a *app) resolveTarget(target string) (name, dir string, err error) {
	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		abs, err := resolveDir(target)
		if err != nil {
			return "", "", err
		}
		names, err := a.registry.Names()
		if err != nil {
			return "", "", err
		}
		for _, n := range names {
			src, err := a.registry.SourceDir(n)
			if err != nil {
				continue
			}
			if srcAbs, err := filepath.Abs(src); err == nil && srcAbs == abs {
				return n, abs, nil
			}
		}
		return "", "", errors.New(errors.ErrCodeIndexNotFound,
			fmt.Sprintf("no index is built from %s", abs), nil).
			WithSuggestion("Run: ragindex index " + abs)
	}

	dir, err = a.registry.SourceDir(target)
	if err != nil {
		return "", "", err
	}
	return target, dir, nil
}

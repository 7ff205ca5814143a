package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve indexes to AI clients over MCP",
		Long: `Start a Model Context Protocol server on stdio.

Indexes listed in the config are refreshed in the background when the
server starts; those with watch: true are refreshed again whenever their
directory changes. Logs go to the log file, never to stdout or stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio")

	return cmd
}

func runServe(ctx context.Context, transport string) error {
	a, err := openApp(ctx, true)
	if err != nil {
		slog.Error("serve_startup_failed", errors.LogAttrs(err)...)
		return err
	}
	defer func() { _ = a.Close() }()

	server, err := mcp.NewServer(a.registry, a.history, a.cfg)
	if err != nil {
		return err
	}

	// Indexing runs on the registry's workers so the handshake is not
	// delayed by the initial pass.
	if err := a.registry.Start(ctx); err != nil {
		slog.Error("registry_start_failed", errors.LogAttrs(err)...)
		return err
	}

	slog.Info("serve_started",
		slog.String("transport", transport),
		slog.Int("configured_indexes", len(a.cfg.Indexes)),
		slog.Bool("history", a.history != nil))
	err = server.Serve(ctx, transport)
	if ctx.Err() != nil {
		slog.Info("serve_stopped")
		return nil
	}
	return err
}

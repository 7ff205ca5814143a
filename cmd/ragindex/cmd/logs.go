package cmd

import (
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/logging"
	"github.com/Aman-CERP/ragindex/internal/ui"
)

func newLogsCmd() *cobra.Command {
	var (
		follow bool
		lines  int
		level  string
		filter string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View ragindex log files",
		Long: `Show the most recent entries of the ragindex log file.

The default file is log.file from the configuration, or
~/.ragindex/logs/ragindex.log where 'ragindex serve' and --debug write.`,
		Example: `  ragindex logs
  ragindex logs -f --level warn
  ragindex logs --filter index_failed -n 200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pattern *regexp.Regexp
			if filter != "" {
				re, err := regexp.Compile(filter)
				if err != nil {
					return errors.ValidationError("invalid --filter pattern", err)
				}
				pattern = re
			}

			path, err := logFilePath(file)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err != nil {
				return errors.New(errors.ErrCodeFileNotFound, "log file not found: "+path, err).
					WithSuggestion("Run 'ragindex serve' or any command with --debug to create it")
			}

			out := cmd.OutOrStdout()
			viewer := logging.NewViewer(logging.ViewerConfig{
				Level:   level,
				Pattern: pattern,
				NoColor: noColor || !ui.IsTTY(out) || ui.DetectNoColor(),
			}, out)

			entries, err := viewer.Tail(path, lines)
			if err != nil {
				return err
			}
			viewer.Print(entries)
			if !follow {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch := make(chan logging.LogEntry, 64)
			done := make(chan error, 1)
			go func() { done <- viewer.Follow(ctx, path, ch) }()
			for {
				select {
				case entry := <-ch:
					viewer.Print([]logging.LogEntry{entry})
				case err := <-done:
					return err
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level to show (debug, info, warn, error)")
	cmd.Flags().StringVar(&filter, "filter", "", "Only show lines matching this regular expression")
	cmd.Flags().StringVar(&file, "file", "", "Log file to read")

	return cmd
}

// logFilePath picks --file, then the configured log file, then the default.
func logFilePath(flag string) (string, error) {
	if flag != "" {
		return config.ExpandPath(flag), nil
	}
	cfg, err := currentConfig()
	if err != nil {
		return "", err
	}
	if cfg.Log.File != "" {
		return config.ExpandPath(cfg.Log.File), nil
	}
	return logging.DefaultLogPath(), nil
}

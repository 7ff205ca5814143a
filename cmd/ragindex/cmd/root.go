// Package cmd provides the CLI commands for ragindex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/logging"
	"github.com/Aman-CERP/ragindex/pkg/version"
)

// Global flags
var (
	configPath string
	debugMode  bool
	noColor    bool
)

var (
	loadedConfig   *config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the ragindex CLI.
func NewRootCmd() *cobra.Command {
	loadedConfig = nil

	cmd := &cobra.Command{
		Use:   "ragindex",
		Short: "Local document indexes with hybrid semantic and keyword search",
		Long: `ragindex builds persistent, named indexes over directories of text
documents and answers natural-language queries with a blend of vector
similarity and full-text keyword scores.

Indexes can be queried from the command line or served to AI clients
over the Model Context Protocol with 'ragindex serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("ragindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $RAGINDEX_CONFIG or ~/.config/ragindex/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.ragindex/logs/")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newFilesCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error with its hint and code.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
	}
	return err
}

// startLogging loads the configuration and installs the default logger. The
// serve command logs to file only because stdout carries the protocol.
func startLogging(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" || cmd.Name() == "logs" {
		return nil
	}
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	cleanup, err := logging.SetupDefault(loggingConfig(cfg, cmd.Name() == "serve"))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	if debugMode {
		slog.Debug("debug_logging_enabled",
			slog.String("command", cmd.CommandPath()),
			slog.String("version", version.Version))
	}
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loggingConfig maps the log section onto logging.Config. Interactive
// commands without a log file only surface warnings on stderr.
func loggingConfig(cfg *config.Config, serve bool) logging.Config {
	file := config.ExpandPath(cfg.Log.File)
	if serve {
		lc := logging.ServeConfig(cfg.Log.Level, file)
		lc.MaxSizeMB, lc.MaxFiles = cfg.Log.MaxSizeMB, cfg.Log.MaxFiles
		if debugMode {
			lc.Level = "debug"
		}
		return lc
	}

	lc := logging.DefaultConfig()
	lc.Level, lc.FilePath = cfg.Log.Level, file
	lc.MaxSizeMB, lc.MaxFiles = cfg.Log.MaxSizeMB, cfg.Log.MaxFiles
	lc.WriteToStderr = file == ""
	switch {
	case debugMode:
		lc.Level = "debug"
		if lc.FilePath == "" {
			lc.FilePath = logging.DefaultLogPath()
		}
	case lc.WriteToStderr && logging.ParseLevel(lc.Level) < slog.LevelWarn:
		lc.Level = "warn"
	}
	return lc
}

// currentConfig loads the configuration once per command invocation.
func currentConfig() (*config.Config, error) {
	if loadedConfig != nil {
		return loadedConfig, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	loadedConfig = cfg
	return cfg, nil
}

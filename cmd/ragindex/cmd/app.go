package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/embed"
	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/history"
	"github.com/Aman-CERP/ragindex/internal/index"
)

// HistoryFile is the query history database under the storage path.
const HistoryFile = "history.db"

// app bundles what index-backed commands share.
type app struct {
	cfg      *config.Config
	embedder embed.Embedder
	history  *history.Store
	registry *index.Registry
}

// openApp builds the embedder and the index registry. With withHistory the
// query history store is opened too, when enabled.
func openApp(ctx context.Context, withHistory bool) (*app, error) {
	cfg, err := currentConfig()
	if err != nil {
		return nil, err
	}

	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, embedder: embedder}
	if withHistory {
		if a.history, err = openHistory(ctx, cfg); err != nil {
			_ = embedder.Close()
			return nil, err
		}
	}
	a.registry = index.NewRegistry(cfg, embedder, a.history)
	return a, nil
}

// Close releases the registry, the history store and the embedder.
func (a *app) Close() error {
	errs := []error{a.registry.Close()}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	errs = append(errs, a.embedder.Close())
	return stderrors.Join(errs...)
}

// historyPath returns the location of the query history database.
func historyPath(cfg *config.Config) string {
	return filepath.Join(config.ExpandPath(cfg.StoragePath), HistoryFile)
}

// openHistory opens the history store and drops entries past the retention
// window. It returns nil, nil when history is disabled.
func openHistory(ctx context.Context, cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	path := historyPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to create storage directory", err)
	}
	hist, err := history.Open(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to open query history", err).
			WithDetail("path", path)
	}
	if days := cfg.History.RetentionDays; days > 0 {
		n, err := hist.Clear(ctx, days)
		if err != nil {
			slog.Warn("history_prune_failed", slog.String("error", err.Error()))
		} else if n > 0 {
			slog.Info("history_pruned", slog.Int("removed", n), slog.Int("retention_days", days))
		}
	}
	return hist, nil
}

// requireHistory opens the history store or explains how to enable it.
func requireHistory(ctx context.Context) (*history.Store, error) {
	cfg, err := currentConfig()
	if err != nil {
		return nil, err
	}
	hist, err := openHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if hist == nil {
		return nil, errors.ConfigError("query history is disabled", nil).
			WithSuggestion("Set history.enabled: true in the config file")
	}
	return hist, nil
}

// indexNames returns name alone, or every known index when name is empty.
func (a *app) indexNames(name string) ([]string, error) {
	if name != "" {
		if _, err := a.registry.Get(name); err != nil {
			return nil, err
		}
		return []string{name}, nil
	}
	names, err := a.registry.Names()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.New(errors.ErrCodeIndexNotFound, "no indexes found", nil).
			WithSuggestion("Run: ragindex index <dir>")
	}
	return names, nil
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// defaultIndexName derives an index name from a directory's base name.
func defaultIndexName(dir string) string {
	name := invalidNameChars.ReplaceAllString(filepath.Base(dir), "-")
	name = strings.TrimLeft(name, "._-")
	if !config.ValidIndexName(name) {
		return "default"
	}
	return name
}

// resolveDir returns the absolute path of dir and checks it is a directory.
func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.New(errors.ErrCodeFileNotFound, "directory does not exist", err).
			WithDetail("path", abs)
	}
	if !info.IsDir() {
		return "", errors.ValidationError(fmt.Sprintf("not a directory: %s", abs), nil)
	}
	return abs, nil
}

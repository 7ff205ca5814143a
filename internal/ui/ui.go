// Package ui renders indexing progress and command output in the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/ragindex/internal/async"
)

// DefaultRefreshInterval is how often Follow samples progress.
const DefaultRefreshInterval = 200 * time.Millisecond

// ErrorEvent represents a file that failed during indexing.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// EmbedderInfo contains embedder backend details.
type EmbedderInfo struct {
	Model      string
	Dimensions int
}

// CompletionStats contains final indexing statistics.
type CompletionStats struct {
	Index     string
	Files     int
	Unchanged int
	Removed   int
	Failed    int
	Chunks    int
	Duration  time.Duration
	Embedder  EmbedderInfo
}

// Renderer displays the progress of one indexing pass.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// Update renders a progress snapshot.
	Update(snap async.IndexProgressSnapshot)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output      io.Writer
	Title       string
	ForcePlain  bool
	ProgressBar bool
	NoColor     bool
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithProgressBar selects the single-line progress bar over the TUI.
func WithProgressBar(bar bool) ConfigOption {
	return func(c *Config) {
		c.ProgressBar = bar
	}
}

// WithTitle sets the heading shown above the TUI progress panel.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI renderer for interactive terminals, or the
// progress bar when requested. CI, pipes and forced plain output get the
// plain text renderer.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	if cfg.ProgressBar {
		return NewBarRenderer(cfg)
	}
	r, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return r
}

// Follow feeds snapshots of the current progress to r until ctx is done.
// progress may return nil before the first pass starts.
func Follow(ctx context.Context, progress func() *async.IndexProgress, r Renderer, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if p := progress(); p != nil {
			r.Update(p.Snapshot())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// stageIcon returns the short stage tag used in plain output.
func stageIcon(stage string) string {
	switch async.IndexingStage(stage) {
	case async.StageScanning:
		return "SCAN"
	case async.StageRemoving:
		return "CLEAN"
	case async.StageIndexing:
		return "INDEX"
	default:
		return "????"
	}
}

// stageLabel returns the stage name shown next to the progress bar.
func stageLabel(stage string) string {
	switch async.IndexingStage(stage) {
	case async.StageScanning:
		return "Scanning"
	case async.StageRemoving:
		return "Removing deleted files"
	case async.StageIndexing:
		return "Indexing"
	default:
		return "Working"
	}
}

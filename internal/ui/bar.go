package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Aman-CERP/ragindex/internal/async"
)

// BarRenderer draws a progress bar per stage for interactive terminals.
type BarRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
	color  bool
	bar    *progressbar.ProgressBar
	stage  string
	total  int
}

// NewBarRenderer creates a progress bar renderer.
func NewBarRenderer(cfg Config) *BarRenderer {
	noColor := cfg.NoColor || DetectNoColor()
	return &BarRenderer{
		out:    cfg.Output,
		styles: GetStyles(noColor),
		color:  !noColor,
	}
}

// Start implements Renderer.
func (r *BarRenderer) Start(ctx context.Context) error {
	return nil
}

// Update implements Renderer. A new bar is started whenever the stage or the
// stage total changes.
func (r *BarRenderer) Update(snap async.IndexProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil || snap.Stage != r.stage || snap.FilesTotal != r.total {
		r.finishLocked()
		r.bar = r.newBar(snap)
		r.stage, r.total = snap.Stage, snap.FilesTotal
	}
	if snap.FilesTotal > 0 {
		_ = r.bar.Set(snap.FilesProcessed)
		r.bar.Describe(r.describe(snap))
	} else {
		_ = r.bar.Add(1)
	}
}

func (r *BarRenderer) newBar(snap async.IndexProgressSnapshot) *progressbar.ProgressBar {
	total := snap.FilesTotal
	if total <= 0 {
		total = -1 // spinner until the total is known
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionEnableColorCodes(r.color),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription(r.describe(snap)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        r.paint("[green]=[reset]", "="),
			SaucerHead:    r.paint("[green]>[reset]", ">"),
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(r.out)
		}),
	)
}

func (r *BarRenderer) describe(snap async.IndexProgressSnapshot) string {
	label := r.paint("[cyan]"+stageLabel(snap.Stage)+"[reset]", stageLabel(snap.Stage))
	if async.IndexingStage(snap.Stage) == async.StageIndexing {
		return fmt.Sprintf("%s (%d chunks)", label, snap.ChunksIndexed)
	}
	return label
}

func (r *BarRenderer) paint(colored, plain string) string {
	if r.color {
		return colored
	}
	return plain
}

// AddError implements Renderer.
func (r *BarRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar != nil {
		_ = r.bar.Clear()
	}
	style := r.styles.Error
	if event.IsWarn {
		style = r.styles.Warning
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s %s: %v\n", style.Render("✗"), event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s %v\n", style.Render("✗"), event.Err)
	}
}

// Complete implements Renderer.
func (r *BarRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finishLocked()
	writeSummary(r.out, stats, r.styles)
}

func (r *BarRenderer) finishLocked() {
	if r.bar == nil {
		return
	}
	if r.total > 0 {
		_ = r.bar.Finish()
	} else {
		_ = r.bar.Clear()
	}
	r.bar = nil
}

// Stop implements Renderer.
func (r *BarRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishLocked()
	return nil
}

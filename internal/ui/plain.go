package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Aman-CERP/ragindex/internal/async"
)

// PlainRenderer outputs plain text progress (for CI/pipes). It prints a line
// only when the stage or counts change.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	last   async.IndexProgressSnapshot
	seen   bool
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// Update implements Renderer.
func (r *PlainRenderer) Update(snap async.IndexProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seen && snap.Stage == r.last.Stage &&
		snap.FilesProcessed == r.last.FilesProcessed &&
		snap.FilesTotal == r.last.FilesTotal {
		return
	}
	r.last, r.seen = snap, true

	// Format: [STAGE] current/total files, chunks
	if snap.FilesTotal > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d files, %d chunks\n",
			stageIcon(snap.Stage), snap.FilesProcessed, snap.FilesTotal, snap.ChunksIndexed)
	} else {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", stageIcon(snap.Stage), stageLabel(snap.Stage))
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	writeSummary(r.out, stats, NoColorStyles())
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

// writeSummary prints the completion summary shared by both renderers.
func writeSummary(out io.Writer, stats CompletionStats, s Styles) {
	_, _ = fmt.Fprintf(out, "%s %d files indexed, %d chunks in %s",
		s.Success.Render("Complete:"), stats.Files, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if stats.Failed > 0 {
		_, _ = fmt.Fprintf(out, " (%s)", s.Error.Render(fmt.Sprintf("%d failed", stats.Failed)))
	}
	_, _ = fmt.Fprintln(out)

	if stats.Unchanged > 0 || stats.Removed > 0 {
		_, _ = fmt.Fprintf(out, "  %s %d unchanged, %d removed\n", s.Label.Render("Skipped:"), stats.Unchanged, stats.Removed)
	}
	if stats.Index != "" {
		_, _ = fmt.Fprintf(out, "  %s %s\n", s.Label.Render("Index:  "), stats.Index)
	}
	if stats.Embedder.Model != "" {
		_, _ = fmt.Fprintf(out, "  %s %s (%d dims)\n", s.Label.Render("Model:  "), stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

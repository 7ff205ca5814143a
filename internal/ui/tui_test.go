package ui

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/async"
)

func TestNewTUIRenderer_ReturnsNilForNonTTY(t *testing.T) {
	// Given: a non-TTY buffer
	cfg := NewConfig(&bytes.Buffer{})

	// When: creating TUI renderer
	r, err := NewTUIRenderer(cfg)

	// Then: returns error (can't create TUI for non-TTY)
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestNewConfig_ProgressBarAndTitle(t *testing.T) {
	cfg := NewConfig(&bytes.Buffer{}, WithProgressBar(true), WithTitle("Indexing docs"))

	assert.True(t, cfg.ProgressBar)
	assert.Equal(t, "Indexing docs", cfg.Title)
}

func TestProgressModel_InitialView(t *testing.T) {
	// Given: a new model with no snapshot yet
	m := newProgressModel("Indexing docs", true)

	// When: getting initial view
	view := m.View()

	// Then: the title and every stage are shown as pending
	assert.Contains(t, view, "Indexing docs")
	assert.Contains(t, view, "○ Scanning")
	assert.Contains(t, view, "○ Removing deleted files")
	assert.Contains(t, view, "○ Indexing")
}

func TestProgressModel_StageIndicators(t *testing.T) {
	tests := []struct {
		stage   async.IndexingStage
		done    []string
		pending []string
	}{
		{async.StageScanning, nil, []string{"○ Removing deleted files", "○ Indexing"}},
		{async.StageRemoving, []string{"● Scanning"}, []string{"○ Indexing"}},
		{async.StageIndexing, []string{"● Scanning", "● Removing deleted files"}, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			// Given: a model in the stage
			m := newProgressModel("", true)
			m.Update(snapshotMsg{Status: "indexing", Stage: string(tt.stage)})

			// When: rendering
			view := m.View()

			// Then: earlier stages are done and later ones pending
			for _, s := range tt.done {
				assert.Contains(t, view, s)
			}
			for _, s := range tt.pending {
				assert.Contains(t, view, s)
			}
		})
	}
}

func TestProgressModel_ProgressDisplay(t *testing.T) {
	// Given: a model half way through indexing
	m := newProgressModel("", true)
	m.Update(snapshotMsg{
		Status:         "indexing",
		Stage:          string(async.StageIndexing),
		FilesTotal:     10,
		FilesProcessed: 5,
		ChunksIndexed:  42,
		ElapsedSeconds: 3,
	})

	// When: rendering
	view := m.View()

	// Then: counts, percentage and elapsed time are shown
	assert.Contains(t, view, "5/10 files, 42 chunks")
	assert.Contains(t, view, " 50%")
	assert.Contains(t, view, "3s")
}

func TestProgressModel_ErrorDisplay(t *testing.T) {
	// Given: more failures than the panel lists
	m := newProgressModel("", true)
	for i := range maxShownErrors + 2 {
		m.Update(errorMsg{File: fmt.Sprintf("f%d.md", i), Err: errors.New("unreadable")})
	}

	// When: rendering
	view := m.View()

	// Then: the latest failures are listed and the rest counted
	assert.NotContains(t, view, "f0.md")
	assert.Contains(t, view, fmt.Sprintf("f%d.md: unreadable", maxShownErrors+1))
	assert.Contains(t, view, "... and 2 more")
}

func TestProgressModel_CompletionState(t *testing.T) {
	// Given: a running model
	m := newProgressModel("", true)

	// When: the pass completes
	_, cmd := m.Update(completeMsg{Index: "docs", Files: 3, Chunks: 12, Duration: time.Second})

	// Then: the program quits and the view is the summary
	require.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Complete: 3 files indexed, 12 chunks")
	assert.Contains(t, view, "docs")
	assert.NotContains(t, view, "○ Scanning")
}

func TestTUIRenderer_InterfaceCompliance(t *testing.T) {
	var _ Renderer = (*TUIRenderer)(nil)
}

package ui

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/async"
)

// syncBuffer is a bytes.Buffer safe for concurrent writes from Follow.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewConfig_AppliesOptions(t *testing.T) {
	// Given: an output buffer
	buf := &bytes.Buffer{}

	// When: creating a config with options
	cfg := NewConfig(buf, WithForcePlain(true), WithNoColor(true))

	// Then: options are applied
	assert.Same(t, buf, cfg.Output)
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
}

func TestNewRenderer_NonTTY_ReturnsPlain(t *testing.T) {
	// Given: a buffer, which is never a terminal
	cfg := NewConfig(&bytes.Buffer{})

	// When: creating a renderer
	r := NewRenderer(cfg)

	// Then: plain output is chosen
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewRenderer_ForcePlain_ReturnsPlain(t *testing.T) {
	r := NewRenderer(NewConfig(&bytes.Buffer{}, WithForcePlain(true)))

	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestIsTTY_WithBuffer_ReturnsFalse(t *testing.T) {
	// Given: a bytes.Buffer (not a TTY)
	buf := &bytes.Buffer{}

	// When/Then: it is not a terminal, and neither is nil
	assert.False(t, IsTTY(buf))
	assert.False(t, IsTTY(nil))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestDetectCI(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "true")
	assert.True(t, DetectCI())
}

func TestStageIconAndLabel(t *testing.T) {
	tests := []struct {
		stage async.IndexingStage
		icon  string
		label string
	}{
		{async.StageScanning, "SCAN", "Scanning"},
		{async.StageRemoving, "CLEAN", "Removing deleted files"},
		{async.StageIndexing, "INDEX", "Indexing"},
		{"bogus", "????", "Working"},
	}

	for _, tt := range tests {
		t.Run(tt.icon, func(t *testing.T) {
			assert.Equal(t, tt.icon, stageIcon(string(tt.stage)))
			assert.Equal(t, tt.label, stageLabel(string(tt.stage)))
		})
	}
}

func TestFollow_RendersProgressUntilCancelled(t *testing.T) {
	// Given: a pass in the indexing stage and a plain renderer
	progress := async.NewIndexProgress()
	progress.SetStage(async.StageIndexing, 4)
	progress.UpdateFiles(2)
	progress.UpdateChunks(7)
	out := &syncBuffer{}
	r := NewPlainRenderer(NewConfig(out))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	// When: following until the output shows up
	go func() {
		defer close(done)
		Follow(ctx, func() *async.IndexProgress { return progress }, r, 5*time.Millisecond)
	}()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[INDEX] 2/4 files, 7 chunks")
	}, time.Second, 5*time.Millisecond)
	cancel()

	// Then: Follow returns after cancellation
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestFollow_NilProgress_RendersNothing(t *testing.T) {
	// Given: no pass has started yet
	out := &syncBuffer{}
	r := NewPlainRenderer(NewConfig(out))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// When: following until the deadline
	Follow(ctx, func() *async.IndexProgress { return nil }, r, 5*time.Millisecond)

	// Then: nothing is printed
	assert.Empty(t, out.String())
}

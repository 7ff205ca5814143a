package async

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIndexProgress(t *testing.T) {
	p := NewIndexProgress()

	require.NotNil(t, p)
	snap := p.Snapshot()
	assert.Equal(t, string(StatusIndexing), snap.Status)
	assert.Equal(t, string(StageScanning), snap.Stage)
	assert.Zero(t, snap.FilesTotal)
	assert.True(t, p.IsIndexing())
}

func TestIndexProgress_SetStage_ResetsProcessed(t *testing.T) {
	// Given: a pass halfway through removals
	p := NewIndexProgress()
	p.SetStage(StageRemoving, 4)
	p.UpdateFiles(2)

	// When: moving on to indexing
	p.SetStage(StageIndexing, 10)

	// Then: totals belong to the new stage
	snap := p.Snapshot()
	assert.Equal(t, "indexing", snap.Stage)
	assert.Equal(t, 10, snap.FilesTotal)
	assert.Zero(t, snap.FilesProcessed)
}

func TestIndexProgress_Counters(t *testing.T) {
	p := NewIndexProgress()
	p.SetStage(StageIndexing, 100)

	p.UpdateFiles(40)
	p.UpdateChunks(250)
	p.RecordFailure()
	p.RecordFailure()

	snap := p.Snapshot()
	assert.Equal(t, 40, snap.FilesProcessed)
	assert.Equal(t, 250, snap.ChunksIndexed)
	assert.Equal(t, 2, snap.FilesFailed)
}

func TestIndexProgress_Terminal(t *testing.T) {
	tests := []struct {
		name       string
		finish     func(p *IndexProgress)
		wantStatus IndexingStatus
		wantError  string
	}{
		{"ready", func(p *IndexProgress) { p.SetReady() }, StatusReady, ""},
		{"error", func(p *IndexProgress) { p.SetError("context canceled") }, StatusError, "context canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewIndexProgress()

			tt.finish(p)

			snap := p.Snapshot()
			assert.Equal(t, string(tt.wantStatus), snap.Status)
			assert.Equal(t, tt.wantError, snap.ErrorMessage)
			assert.False(t, p.IsIndexing())
		})
	}
}

func TestIndexProgress_ProgressPct(t *testing.T) {
	tests := []struct {
		total, processed int
		want             float64
	}{
		{0, 0, 0},
		{100, 50, 50},
		{100, 100, 100},
		{1000, 333, 33.3},
	}

	for _, tt := range tests {
		p := NewIndexProgress()
		p.SetStage(StageIndexing, tt.total)
		p.UpdateFiles(tt.processed)

		assert.InDelta(t, tt.want, p.Snapshot().ProgressPct, 0.1)
	}
}

func TestIndexProgress_SnapshotIsCopy(t *testing.T) {
	p := NewIndexProgress()
	p.SetStage(StageIndexing, 100)
	p.UpdateFiles(50)

	first := p.Snapshot()
	p.UpdateFiles(75)

	assert.Equal(t, 50, first.FilesProcessed)
	assert.Equal(t, 75, p.Snapshot().FilesProcessed)
}

func TestIndexProgress_ConcurrentUse(t *testing.T) {
	p := NewIndexProgress()
	p.SetStage(StageIndexing, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			p.UpdateFiles(n)
			p.RecordFailure()
		}(i)
		go func() {
			defer wg.Done()
			_ = p.Snapshot()
			_ = p.IsIndexing()
		}()
	}
	wg.Wait()

	snap := p.Snapshot()
	assert.Equal(t, 100, snap.FilesFailed)
	assert.LessOrEqual(t, snap.FilesProcessed, 99)
}

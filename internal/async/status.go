// Package async runs index refreshes in the background and tracks their
// progress for callers polling from other goroutines.
package async

import (
	"sync"
	"time"
)

// IndexingStatus is the overall state of a pass.
type IndexingStatus string

const (
	StatusIndexing IndexingStatus = "indexing"
	StatusReady    IndexingStatus = "ready"
	StatusError    IndexingStatus = "error"
)

// IndexingStage is the step a running pass is in.
type IndexingStage string

const (
	// StageScanning lists candidate files.
	StageScanning IndexingStage = "scanning"
	// StageRemoving deletes files that disappeared from disk.
	StageRemoving IndexingStage = "removing"
	// StageIndexing chunks, embeds and stores changed files.
	StageIndexing IndexingStage = "indexing"
)

// IndexProgressSnapshot is a point-in-time copy of IndexProgress.
type IndexProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	FilesFailed    int     `json:"files_failed"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// IndexProgress tracks one pass. All methods are safe for concurrent use.
type IndexProgress struct {
	mu sync.RWMutex

	status         IndexingStatus
	stage          IndexingStage
	filesTotal     int
	filesProcessed int
	filesFailed    int
	chunksIndexed  int
	started        time.Time
	finished       time.Time
	errorMessage   string
}

// NewIndexProgress returns a tracker in the scanning stage.
func NewIndexProgress() *IndexProgress {
	return &IndexProgress{
		status:  StatusIndexing,
		stage:   StageScanning,
		started: time.Now(),
	}
}

// SetStage moves to stage with total units of work and resets the processed
// count.
func (p *IndexProgress) SetStage(stage IndexingStage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.filesTotal = total
	p.filesProcessed = 0
}

// UpdateFiles sets the number of processed files in the current stage.
func (p *IndexProgress) UpdateFiles(processed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesProcessed = processed
}

// RecordFailure counts a file that could not be indexed.
func (p *IndexProgress) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesFailed++
}

// UpdateChunks sets the number of chunks written so far.
func (p *IndexProgress) UpdateChunks(indexed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chunksIndexed = indexed
}

// SetError marks the pass as failed.
func (p *IndexProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
	p.finished = time.Now()
}

// SetReady marks the pass as complete.
func (p *IndexProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
	p.finished = time.Now()
}

// IsIndexing reports whether the pass is still running.
func (p *IndexProgress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns a copy of the current state. Elapsed time stops at the
// end of the pass.
func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.filesTotal > 0 {
		pct = float64(p.filesProcessed) / float64(p.filesTotal) * 100.0
	}
	end := p.finished
	if end.IsZero() {
		end = time.Now()
	}

	return IndexProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		FilesFailed:    p.filesFailed,
		ChunksIndexed:  p.chunksIndexed,
		ProgressPct:    pct,
		ElapsedSeconds: int(end.Sub(p.started).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}

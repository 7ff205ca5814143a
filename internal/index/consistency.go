package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/ragindex/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanVector is a live vector row whose chunk is gone
	// from metadata.
	InconsistencyOrphanVector InconsistencyType = iota
	// InconsistencyMissingVector is a chunk without a live vector row.
	InconsistencyMissingVector
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency represents a detected cross-store issue.
type Inconsistency struct {
	Type    InconsistencyType
	ChunkID int64
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of metadata chunks verified.
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// ConsistencyChecker compares the metadata store, which is the source of
// truth, with the vector store. They drift apart when a process dies between
// committing a document and saving vectors, or when the vector files are
// discarded as corrupt.
type ConsistencyChecker struct {
	metadata store.MetadataStore
	vector   store.VectorStore
}

// NewConsistencyChecker creates a new checker with the given stores.
func NewConsistencyChecker(metadata store.MetadataStore, vector store.VectorStore) *ConsistencyChecker {
	return &ConsistencyChecker{metadata: metadata, vector: vector}
}

// QuickCheck compares counts and row bounds only.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	stats, err := c.metadata.Stats(ctx)
	if err != nil {
		return false, err
	}
	maxRow, err := c.metadata.MaxEmbeddingRow(ctx)
	if err != nil {
		return false, err
	}

	consistent := stats.ChunkCount == c.vector.Count() && maxRow < int64(c.vector.NextRow())
	if !consistent {
		slog.Debug("index_counts_mismatch",
			slog.Int("chunks", stats.ChunkCount),
			slog.Int("vectors", c.vector.Count()),
			slog.Int64("max_row", maxRow),
			slog.Int("next_row", c.vector.NextRow()))
	}
	return consistent, nil
}

// Check lists every orphan and missing vector.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	chunkIDs, err := c.metadata.AllChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	vectorIDs := c.vector.AllIDs()

	inMetadata := make(map[int64]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		inMetadata[id] = struct{}{}
	}

	var issues []Inconsistency
	for _, id := range vectorIDs {
		if _, ok := inMetadata[id]; !ok {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVector, ChunkID: id})
		}
	}
	for _, id := range chunkIDs {
		if !c.vector.Contains(id) {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVector, ChunkID: id})
		}
	}

	return &CheckResult{
		Checked:         len(chunkIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair tombstones orphan vectors and clears the hash of every file with a
// missing vector, so the next indexing pass re-embeds it.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	var orphans, missing []int64
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanVector:
			orphans = append(orphans, issue.ChunkID)
		case InconsistencyMissingVector:
			missing = append(missing, issue.ChunkID)
		}
	}

	if len(orphans) > 0 {
		if err := c.vector.Delete(ctx, orphans); err != nil {
			return err
		}
		slog.Info("orphan_vectors_tombstoned", slog.Int("count", len(orphans)))
	}

	if len(missing) > 0 {
		files, err := c.metadata.InvalidateChunkFiles(ctx, missing)
		if err != nil {
			return err
		}
		slog.Warn("files_queued_for_reembedding",
			slog.Int("missing_vectors", len(missing)),
			slog.Int("files", files))
	}
	return nil
}

// Reconcile runs QuickCheck and, when it fails, Check and Repair. It reports
// whether anything was repaired.
func (c *ConsistencyChecker) Reconcile(ctx context.Context) (bool, error) {
	ok, err := c.QuickCheck(ctx)
	if err != nil || ok {
		return false, err
	}
	result, err := c.Check(ctx)
	if err != nil {
		return false, err
	}
	if len(result.Inconsistencies) == 0 {
		return false, nil
	}
	return true, c.Repair(ctx, result.Inconsistencies)
}

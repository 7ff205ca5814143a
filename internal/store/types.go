// Package store provides the persistence layer of an index: a SQLite
// metadata store with an FTS5 keyword index, and an append-only vector store.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FileOutcome describes what AddFile did with a path.
type FileOutcome int

const (
	// OutcomeNew means the path had no record and one was inserted.
	OutcomeNew FileOutcome = iota
	// OutcomeChanged means the hash differed; old chunks were purged and the
	// record was updated in place.
	OutcomeChanged
	// OutcomeUnchanged means the hash matched and nothing was written.
	OutcomeUnchanged
)

func (o FileOutcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeChanged:
		return "changed"
	case OutcomeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// FileInput is a document as handed to the metadata store.
type FileInput struct {
	Path     string
	FileType string
	Content  string
	Size     int64
	Modified time.Time
}

// FileRecord is a persisted file row.
type FileRecord struct {
	ID        int64
	Path      string
	FileType  string
	Hash      string
	Size      int64
	Modified  time.Time
	IndexedAt time.Time
}

// ChunkInput is a chunk waiting to be persisted.
type ChunkInput struct {
	Text      string
	StartChar int
	EndChar   int

	// EmbeddingRow is the vector store row holding this chunk's vector.
	EmbeddingRow int64
}

// ChunkRecord is a persisted chunk with its file path resolved.
type ChunkRecord struct {
	ID           int64
	FileID       int64
	FilePath     string
	Text         string
	StartChar    int
	EndChar      int
	EmbeddingRow int64
}

// SaveResult reports the effect of SaveDocument.
type SaveResult struct {
	FileID  int64
	Outcome FileOutcome

	// ChunkIDs are the new chunk ids, in input order.
	ChunkIDs []int64

	// PurgedChunkIDs are the ids of chunks removed because the file changed.
	PurgedChunkIDs []int64
}

// KeywordResult is a single full-text match.
type KeywordResult struct {
	ChunkID int64
	// Score is normalized to (0, 1]; the best match in a result set scores 1.
	Score        float64
	MatchedTerms []string
}

// MetadataStats summarizes the metadata store.
type MetadataStats struct {
	FileCount      int
	ChunkCount     int
	TotalSizeBytes int64
	LastIndexed    time.Time
}

// MetadataStore is the durable record of files and chunks plus the keyword
// index over chunk text. It is the source of truth for chunk text and for
// change detection hashes.
type MetadataStore interface {
	AddFile(ctx context.Context, in FileInput) (int64, FileOutcome, error)
	AddChunk(ctx context.Context, fileID int64, text string, startChar, endChar int, embeddingRow int64) (int64, error)

	// SaveDocument registers the file and replaces its chunks in a single
	// transaction. Unchanged files are left untouched and no chunks are written.
	SaveDocument(ctx context.Context, in FileInput, chunks []ChunkInput) (*SaveResult, error)

	GetChunk(ctx context.Context, id int64) (*ChunkRecord, error)
	ChunkIDsByFile(ctx context.Context, path string) ([]int64, error)
	SearchText(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	GetFileByPath(ctx context.Context, path string) (*FileRecord, error)
	GetAllFiles(ctx context.Context) ([]*FileRecord, error)
	DeleteFile(ctx context.Context, path string) ([]int64, error)

	// MaxEmbeddingRow returns the highest embedding row referenced by any
	// chunk, or -1 when there are no chunks.
	MaxEmbeddingRow(ctx context.Context) (int64, error)
	// InvalidateHashes clears every stored hash so the next pass re-embeds.
	InvalidateHashes(ctx context.Context) (int, error)
	// InvalidateChunkFiles clears the hash of every file owning one of the
	// given chunks and returns how many files were touched.
	InvalidateChunkFiles(ctx context.Context, chunkIDs []int64) (int, error)
	// AllChunkIDs returns every chunk id, ascending.
	AllChunkIDs(ctx context.Context) ([]int64, error)

	Stats(ctx context.Context) (*MetadataStats, error)
	Close() error
}

// VectorResult is a single similarity match.
type VectorResult struct {
	ID    int64   // Chunk ID
	Row   int     // Row the vector occupies
	Score float32 // Inner product of unit vectors, in [-1, 1]
}

// VectorStats summarizes a vector store.
type VectorStats struct {
	TotalVectors int // Rows ever appended
	LiveVectors  int // Rows not tombstoned
	Tombstoned   int
	Dimension    int
}

// VectorStore holds unit-length vectors in append-only rows, each mapped to
// a chunk id. Deleting an id tombstones its rows; tombstoned rows are never
// returned by Search and are never reused.
type VectorStore interface {
	// Add appends one row per vector. len(ids) must equal len(vectors).
	Add(ctx context.Context, ids []int64, vectors [][]float32) error

	// Search returns up to k live rows by descending score, ties broken by
	// insertion order. k is clamped to the live row count.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete tombstones every row mapped to ids. Unknown ids are ignored.
	Delete(ctx context.Context, ids []int64) error

	// NextRow is the row index the next appended vector will occupy.
	NextRow() int

	// Count returns the number of live rows.
	Count() int

	Contains(id int64) bool
	// AllIDs returns the ids with a live row, ascending.
	AllIDs() []int64
	Dimension() int
	Stats() VectorStats

	// Reset drops every row.
	Reset()

	// Save and Load persist to files derived from basePath.
	Save(basePath string) error
	Load(basePath string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ErrLengthMismatch is returned when ids and vectors differ in length.
var ErrLengthMismatch = errors.New("ids and vectors length mismatch")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

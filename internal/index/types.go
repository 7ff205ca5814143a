// Package index ties the loader, chunker, embedder and stores together into a
// named, persistent index that can be built, refreshed and queried.
package index

import (
	"time"

	"github.com/Aman-CERP/ragindex/internal/chunk"
	"github.com/Aman-CERP/ragindex/internal/embed"
	"github.com/Aman-CERP/ragindex/internal/loader"
)

// On-disk layout of an index directory.
const (
	MetadataFile = "metadata.db"
	VectorsBase  = "vectors"
	LockFile     = "index.lock"
)

// Default search parameters.
const (
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
	DefaultTopK           = 5

	// candidateFactor is how many candidates each search leg fetches per
	// requested result.
	candidateFactor = 2
)

// ManagerConfig configures one index.
type ManagerConfig struct {
	// Name identifies the index; its files live in StoragePath/Name.
	Name        string
	StoragePath string

	ChunkSize int
	Overlap   int

	FileTypes       []string
	ExcludePatterns []string

	// VectorBackend is "flat" or "hnsw". Empty keeps the backend found on
	// disk, or flat for a new index.
	VectorBackend string

	// LockTimeout bounds the wait for another writer. Zero means 30s.
	LockTimeout time.Duration
}

// ManagerDeps are the collaborators of a Manager. Loader and Chunker are built
// from ManagerConfig when nil.
type ManagerDeps struct {
	Embedder embed.Embedder
	Loader   *loader.Loader
	Chunker  *chunk.RecursiveChunker
}

// IndexResult summarizes one indexing pass.
type IndexResult struct {
	FilesIndexed   int           `json:"files_indexed"`
	FilesUnchanged int           `json:"files_unchanged"`
	FilesFailed    int           `json:"files_failed"`
	FilesRemoved   int           `json:"files_removed"`
	ChunksCreated  int           `json:"chunks_created"`
	Duration       time.Duration `json:"duration"`
	Errors         []FileError   `json:"errors,omitempty"`
}

// FileError records a file that could not be indexed.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// QueryOptions are the parameters of a hybrid query. Use NewQueryOptions for
// the default weights.
type QueryOptions struct {
	Text            string
	TopK            int
	MinScore        float64
	SemanticWeight  float64
	KeywordWeight   float64
	IncludeKeywords bool
}

// NewQueryOptions returns options for text with the default weights.
func NewQueryOptions(text string) QueryOptions {
	return QueryOptions{
		Text:            text,
		TopK:            DefaultTopK,
		SemanticWeight:  DefaultSemanticWeight,
		KeywordWeight:   DefaultKeywordWeight,
		IncludeKeywords: true,
	}
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ChunkID   int64   `json:"chunk_id"`
	Text      string  `json:"text"`
	FilePath  string  `json:"file_path"`
	Score     float64 `json:"score"`
	StartChar int     `json:"start_char"`
	EndChar   int     `json:"end_char"`

	// SemanticScore and KeywordScore are the weighted contributions that
	// add up to Score.
	SemanticScore float64  `json:"semantic_score"`
	KeywordScore  float64  `json:"keyword_score"`
	MatchedTerms  []string `json:"matched_terms,omitempty"`

	Index string `json:"index,omitempty"`
}

// Stats describes an index.
type Stats struct {
	Name              string    `json:"name"`
	Source            string    `json:"source,omitempty"`
	Files             int       `json:"files"`
	Chunks            int       `json:"chunks"`
	SizeBytes         int64     `json:"size_bytes"`
	Vectors           int       `json:"vectors"`
	TombstonedVectors int       `json:"tombstoned_vectors"`
	Dimension         int       `json:"dimension"`
	Backend           string    `json:"backend"`
	Model             string    `json:"model"`
	LastIndexed       time.Time `json:"last_indexed,omitempty"`
}

// FileInfo is one indexed file.
type FileInfo struct {
	Path      string    `json:"path"`
	Type      string    `json:"type"`
	Size      int64     `json:"size"`
	Modified  time.Time `json:"modified"`
	IndexedAt time.Time `json:"indexed_at"`
}

package mcp

// Result caps for list-style tools.
const (
	maxInfoFiles   = 50
	maxFileMatches = 100

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	maxTopK             = 100
)

// QueryInput defines the input schema for the query tool.
type QueryInput struct {
	Query           string  `json:"query" jsonschema:"search query text"`
	IndexName       string  `json:"index_name,omitempty" jsonschema:"name of the index to search; searches every index when empty"`
	TopK            int     `json:"top_k,omitempty" jsonschema:"number of results to return, default 5"`
	MinScore        float64 `json:"min_score,omitempty" jsonschema:"minimum combined score, default 0"`
	IncludeKeywords *bool   `json:"include_keywords,omitempty" jsonschema:"include keyword matching, default true"`
}

// QueryOutput defines the output schema for the query tool.
type QueryOutput struct {
	Query   string              `json:"query"`
	Results []QueryResultOutput `json:"results"`
}

// QueryResultOutput is one ranked chunk.
type QueryResultOutput struct {
	Index         string   `json:"index" jsonschema:"index the chunk belongs to"`
	FilePath      string   `json:"file_path" jsonschema:"absolute path of the source file"`
	Text          string   `json:"text" jsonschema:"chunk text"`
	Score         float64  `json:"score" jsonschema:"combined relevance score"`
	SemanticScore float64  `json:"semantic_score"`
	KeywordScore  float64  `json:"keyword_score"`
	StartChar     int      `json:"start_char" jsonschema:"offset of the chunk in the normalized document"`
	EndChar       int      `json:"end_char"`
	MatchedTerms  []string `json:"matched_terms,omitempty" jsonschema:"query terms found in the chunk"`
	MatchReason   string   `json:"match_reason,omitempty" jsonschema:"human-readable explanation of why this chunk matched"`
}

// ListIndexesInput defines the input schema for the list_indexes tool (no parameters).
type ListIndexesInput struct{}

// ListIndexesOutput defines the output schema for the list_indexes tool.
type ListIndexesOutput struct {
	Indexes []IndexSummary `json:"indexes"`
}

// IndexSummary describes one index.
type IndexSummary struct {
	Name        string `json:"name"`
	Source      string `json:"source,omitempty"`
	Files       int    `json:"files"`
	Chunks      int    `json:"chunks"`
	Vectors     int    `json:"vectors"`
	SizeBytes   int64  `json:"size_bytes"`
	Backend     string `json:"backend"`
	Model       string `json:"model"`
	Dimension   int    `json:"dimension"`
	LastIndexed string `json:"last_indexed,omitempty"`
	Status      string `json:"status" jsonschema:"ready, indexing or error"`
}

// RefreshIndexInput defines the input schema for the refresh_index tool.
type RefreshIndexInput struct {
	IndexName string `json:"index_name" jsonschema:"name of the index to refresh"`
	Wait      bool   `json:"wait,omitempty" jsonschema:"wait for the refresh to finish and return its result"`
}

// RefreshIndexOutput defines the output schema for the refresh_index tool.
type RefreshIndexOutput struct {
	Index          string `json:"index"`
	Scheduled      bool   `json:"scheduled" jsonschema:"true when the refresh was queued on the background worker"`
	FilesIndexed   int    `json:"files_indexed"`
	FilesUnchanged int    `json:"files_unchanged"`
	FilesRemoved   int    `json:"files_removed"`
	FilesFailed    int    `json:"files_failed"`
	ChunksCreated  int    `json:"chunks_created"`
	DurationMS     int64  `json:"duration_ms"`
}

// GetIndexInfoInput defines the input schema for the get_index_info tool.
type GetIndexInfoInput struct {
	IndexName string `json:"index_name" jsonschema:"name of the index"`
}

// GetIndexInfoOutput defines the output schema for the get_index_info tool.
type GetIndexInfoOutput struct {
	Index      IndexSummary      `json:"index"`
	Files      []string          `json:"files" jsonschema:"first indexed files ordered by path"`
	TotalFiles int               `json:"total_files"`
	Indexing   *IndexingProgress `json:"indexing,omitempty"`
}

// IndexingProgress describes the latest ingestion pass.
type IndexingProgress struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage,omitempty"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	FilesFailed    int     `json:"files_failed"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// SearchFilesInput defines the input schema for the search_files tool.
type SearchFilesInput struct {
	Pattern   string `json:"pattern" jsonschema:"case-insensitive substring of the file path"`
	IndexName string `json:"index_name,omitempty" jsonschema:"name of the index to search; searches every index when empty"`
}

// SearchFilesOutput defines the output schema for the search_files tool.
type SearchFilesOutput struct {
	Pattern string      `json:"pattern"`
	Matches []FileMatch `json:"matches"`
	Total   int         `json:"total" jsonschema:"number of matches before truncation"`
}

// FileMatch is an indexed file matching a pattern.
type FileMatch struct {
	Index string `json:"index"`
	Path  string `json:"path"`
}

// QueryHistoryInput defines the input schema for the query_history tool.
type QueryHistoryInput struct {
	Limit          int    `json:"limit,omitempty" jsonschema:"maximum number of entries, default 20"`
	IndexName      string `json:"index_name,omitempty" jsonschema:"only queries against this index"`
	Search         string `json:"search,omitempty" jsonschema:"only queries containing this text"`
	IncludeResults bool   `json:"include_results,omitempty" jsonschema:"include the recorded results of each query"`
}

// QueryHistoryOutput defines the output schema for the query_history tool.
type QueryHistoryOutput struct {
	Entries []HistoryEntry `json:"entries"`
}

// HistoryEntry is one recorded query.
type HistoryEntry struct {
	ID          int64           `json:"id"`
	Query       string          `json:"query"`
	Index       string          `json:"index" jsonschema:"index name, or * for queries across every index"`
	TopK        int             `json:"top_k"`
	ResultCount int             `json:"result_count"`
	DurationMS  int64           `json:"duration_ms"`
	Timestamp   string          `json:"timestamp"`
	Results     []HistoryResult `json:"results,omitempty"`
}

// HistoryResult is a recorded result of a past query.
type HistoryResult struct {
	Index    string  `json:"index,omitempty"`
	FilePath string  `json:"file_path"`
	Score    float64 `json:"score"`
}

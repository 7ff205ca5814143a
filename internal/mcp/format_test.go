package mcp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/ragindex/internal/history"
	"github.com/Aman-CERP/ragindex/internal/index"
)

func TestFormatQueryResults_Basic(t *testing.T) {
	// Given: a hybrid result
	results := []*index.SearchResult{{
		ChunkID:       3,
		Text:          "Authentication flow: the client sends credentials.",
		FilePath:      "/docs/auth.md",
		Score:         0.912,
		StartChar:     0,
		EndChar:       51,
		SemanticScore: 0.7,
		KeywordScore:  0.212,
		MatchedTerms:  []string{"authentication", "flow"},
		Index:         "docs",
	}}

	// When: formatting results
	markdown := FormatQueryResults("authentication flow", results)

	// Then: markdown names the file, index, location and why it matched
	assert.Contains(t, markdown, `## Results for "authentication flow"`)
	assert.Contains(t, markdown, "Found 1 result\n")
	assert.Contains(t, markdown, "/docs/auth.md (score: 0.912)")
	assert.Contains(t, markdown, "Index: `docs`")
	assert.Contains(t, markdown, "chars 0-51")
	assert.Contains(t, markdown, "matched: authentication, flow")
	assert.Contains(t, markdown, "both semantic and keyword")
	assert.Contains(t, markdown, "the client sends credentials")
}

func TestFormatQueryResults_Empty(t *testing.T) {
	assert.Equal(t, `No results found for "nothing"`, FormatQueryResults("nothing", nil))
}

func TestFormatQueryResults_Plural(t *testing.T) {
	results := []*index.SearchResult{{FilePath: "/a.md", Score: 0.5}, {FilePath: "/b.md", Score: 0.4}}

	markdown := FormatQueryResults("q", results)

	assert.Contains(t, markdown, "Found 2 results")
	assert.Less(t, strings.Index(markdown, "/a.md"), strings.Index(markdown, "/b.md"))
}

func TestGenerateMatchReason(t *testing.T) {
	tests := []struct {
		name   string
		result *index.SearchResult
		want   string
	}{
		{"nil", nil, ""},
		{"semantic only", &index.SearchResult{SemanticScore: 0.5}, "semantic 0.500"},
		{"keyword only", &index.SearchResult{KeywordScore: 0.2, MatchedTerms: []string{"db"}}, "matched: db"},
		{"no context", &index.SearchResult{}, "matched content"},
		{
			"limits terms",
			&index.SearchResult{KeywordScore: 0.1, MatchedTerms: []string{"a", "b", "c", "d", "e", "f", "g"}},
			"matched: a, b, c, d, e",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generateMatchReason(tt.result))
		})
	}
}

func TestToQueryResultOutput(t *testing.T) {
	r := &index.SearchResult{
		Text: "text", FilePath: "/x.md", Score: 0.9, StartChar: 10, EndChar: 14,
		SemanticScore: 0.6, KeywordScore: 0.3, MatchedTerms: []string{"text"}, Index: "notes",
	}

	out := ToQueryResultOutput(r)

	assert.Equal(t, "notes", out.Index)
	assert.Equal(t, "/x.md", out.FilePath)
	assert.Equal(t, 10, out.StartChar)
	assert.Equal(t, 14, out.EndChar)
	assert.Equal(t, []string{"text"}, out.MatchedTerms)
	assert.NotEmpty(t, out.MatchReason)
	assert.Equal(t, QueryResultOutput{}, ToQueryResultOutput(nil))
}

func TestFormatIndexInfo_TruncatesFiles(t *testing.T) {
	// Given: 52 files of which 50 are listed
	info := GetIndexInfoOutput{
		Index:      IndexSummary{Name: "docs", Files: 52, Status: "ready"},
		TotalFiles: 52,
	}
	for i := 0; i < maxInfoFiles; i++ {
		info.Files = append(info.Files, "/docs/f.md")
	}

	// When: formatting
	text := FormatIndexInfo(info)

	// Then: the remainder is summarized
	assert.Contains(t, text, "### docs")
	assert.Contains(t, text, "Indexed Files (52)")
	assert.Contains(t, text, "... and 2 more files")
}

func TestFormatIndexInfo_ShowsProgress(t *testing.T) {
	info := GetIndexInfoOutput{
		Index:    IndexSummary{Name: "docs", Status: "indexing"},
		Indexing: &IndexingProgress{Status: "indexing", Stage: "indexing", FilesTotal: 10, FilesProcessed: 4, ProgressPct: 40},
	}

	text := FormatIndexInfo(info)

	assert.Contains(t, text, "40.0% (4/10 files)")
}

func TestFormatIndexList(t *testing.T) {
	assert.Equal(t, "No indexes available", FormatIndexList(nil))

	text := FormatIndexList([]IndexSummary{{Name: "a", Files: 2, Chunks: 5, Vectors: 5, SizeBytes: 2048, Status: "ready"}})

	assert.Contains(t, text, "### a")
	assert.Contains(t, text, "Chunks: 5")
	assert.Contains(t, text, "Size: 2.0 KB")
}

func TestFormatRefresh(t *testing.T) {
	scheduled := FormatRefresh(RefreshIndexOutput{Index: "docs", Scheduled: true})
	assert.Contains(t, scheduled, "scheduled")

	done := FormatRefresh(RefreshIndexOutput{Index: "docs", FilesIndexed: 3, FilesRemoved: 1, ChunksCreated: 9, DurationMS: 1500})
	assert.Contains(t, done, "Files indexed: 3")
	assert.Contains(t, done, "Files removed: 1")
	assert.Contains(t, done, "Chunks created: 9")
	assert.Contains(t, done, "1.5s")
	assert.NotContains(t, done, "failed")
}

func TestFormatFileMatches(t *testing.T) {
	assert.Equal(t, "No files found matching pattern: zzz", FormatFileMatches(SearchFilesOutput{Pattern: "zzz"}))

	text := FormatFileMatches(SearchFilesOutput{
		Pattern: "auth",
		Matches: []FileMatch{{Index: "docs", Path: "/docs/auth.md"}},
		Total:   101,
	})
	assert.Contains(t, text, "Found 101 files matching 'auth'")
	assert.Contains(t, text, "[docs] /docs/auth.md")
	assert.Contains(t, text, "... and 100 more files")
}

func TestToHistoryEntry(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &history.Entry{
		ID: 7, Query: "auth", Index: "*", TopK: 5, ResultCount: 1,
		Duration: 25 * time.Millisecond, Timestamp: ts,
		Results: []history.ResultSummary{{ChunkID: 1, FilePath: "/a.md", Score: 0.8, Index: "docs"}},
	}

	out := ToHistoryEntry(e)

	assert.Equal(t, int64(25), out.DurationMS)
	assert.Equal(t, "2026-03-01T12:00:00Z", out.Timestamp)
	assert.Equal(t, []HistoryResult{{Index: "docs", FilePath: "/a.md", Score: 0.8}}, out.Results)
	assert.Contains(t, FormatHistory([]HistoryEntry{out}), `[*] "auth" -> 1 results in 25ms`)
	assert.Equal(t, "No queries recorded", FormatHistory(nil))
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		expected int
	}{
		{"zero uses default", 0, 5},
		{"negative uses default", -3, 5},
		{"within range", 20, 20},
		{"above max", 500, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, clampLimit(tt.limit, 5, 1, 100))
		})
	}
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KB", humanSize(1536))
	assert.Equal(t, "2.0 MB", humanSize(2*1024*1024))
	assert.Equal(t, "1.0 GB", humanSize(1024*1024*1024))
}

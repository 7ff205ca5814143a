package ui

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/async"
	"github.com/Aman-CERP/ragindex/internal/history"
	"github.com/Aman-CERP/ragindex/internal/index"
)

func newTestPrinter() (*Printer, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewPrinter(buf, true), buf
}

func TestPrinter_RenderStats(t *testing.T) {
	// Given: stats for an index mid-pass
	p, buf := newTestPrinter()
	st := &index.Stats{
		Name:              "docs",
		Source:            "/src/docs",
		Files:             4,
		Chunks:            20,
		SizeBytes:         2048,
		Vectors:           20,
		TombstonedVectors: 3,
		Dimension:         768,
		Backend:           "hnsw",
		Model:             "nomic-embed-text",
		LastIndexed:       time.Now(),
	}
	snap := &async.IndexProgressSnapshot{
		Status:         string(async.StatusIndexing),
		FilesTotal:     4,
		FilesProcessed: 1,
		ProgressPct:    25,
	}

	// When: rendering
	p.RenderStats(st, snap)

	// Then: every field is shown
	out := buf.String()
	assert.Contains(t, out, "Index: docs")
	assert.Contains(t, out, "/src/docs")
	assert.Contains(t, out, "(+3 tombstoned)")
	assert.Contains(t, out, "2.0 KB")
	assert.Contains(t, out, "nomic-embed-text (768 dims)")
	assert.Contains(t, out, "just now")
	assert.Contains(t, out, "indexing 25.0% (1/4 files)")
}

func TestPrinter_RenderStats_ShowsLastError(t *testing.T) {
	p, buf := newTestPrinter()

	p.RenderStats(&index.Stats{Name: "docs"}, &async.IndexProgressSnapshot{
		Status:       string(async.StatusError),
		ErrorMessage: "embedding backend unavailable",
	})

	assert.Contains(t, buf.String(), "Last error:")
	assert.Contains(t, buf.String(), "embedding backend unavailable")
	assert.NotContains(t, buf.String(), "Last indexed")
}

func TestPrinter_RenderResults(t *testing.T) {
	// Given: one ranked result with matched terms
	p, buf := newTestPrinter()
	results := []*index.SearchResult{{
		Text:          "Widgets are configured in widgets.yaml.",
		FilePath:      "/src/docs/widgets.md",
		Score:         0.875,
		SemanticScore: 0.6,
		KeywordScore:  0.275,
		StartChar:     10,
		EndChar:       48,
		MatchedTerms:  []string{"widgets", "configured"},
		Index:         "docs",
	}}

	// When: rendering
	p.RenderResults("configure widgets", results)

	// Then: header, score, location and excerpt appear
	out := buf.String()
	assert.Contains(t, out, `1 results for "configure widgets"`)
	assert.Contains(t, out, "1. 0.875 /src/docs/widgets.md [docs]")
	assert.Contains(t, out, "chars 10-48")
	assert.Contains(t, out, "matched: widgets, configured")
	assert.Contains(t, out, "Widgets are configured")
}

func TestPrinter_RenderResults_Empty(t *testing.T) {
	p, buf := newTestPrinter()

	p.RenderResults("nothing", nil)

	assert.Equal(t, "No results found for \"nothing\"\n", buf.String())
}

func TestPrinter_RenderFiles(t *testing.T) {
	tests := []struct {
		name  string
		files []*index.FileInfo
		total int
		want  []string
	}{
		{"empty", nil, 0, []string{"No files found"}},
		{"all shown", []*index.FileInfo{{Path: "a.md", Size: 10}}, 1, []string{"a.md", "10 B"}},
		{"truncated", []*index.FileInfo{{Path: "a.md"}, {Path: "b.md"}}, 5, []string{"b.md", "... and 3 more files"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, buf := newTestPrinter()

			p.RenderFiles(tt.files, tt.total)

			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestPrinter_RenderHistory(t *testing.T) {
	// Given: two recorded queries
	p, buf := newTestPrinter()
	entries := []*history.Entry{
		{ID: 2, Query: "second", Index: "*", ResultCount: 0, Duration: 12 * time.Millisecond, Timestamp: time.Now()},
		{ID: 1, Query: "first", Index: "docs", ResultCount: 3, Duration: 5 * time.Millisecond, Timestamp: time.Now()},
	}

	// When: rendering
	p.RenderHistory(entries)

	// Then: one line per entry in the given order
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `#2`)
	assert.Contains(t, lines[0], `[*] "second"`)
	assert.Contains(t, lines[1], "3 results, 5ms")
}

func TestPrinter_RenderHistory_Empty(t *testing.T) {
	p, buf := newTestPrinter()

	p.RenderHistory(nil)

	assert.Equal(t, "No queries recorded\n", buf.String())
}

func TestPrinter_RenderEntry(t *testing.T) {
	p, buf := newTestPrinter()

	p.RenderEntry(&history.Entry{
		ID:          7,
		Query:       "widgets",
		Index:       "docs",
		TopK:        5,
		ResultCount: 1,
		Duration:    3 * time.Millisecond,
		Timestamp:   time.Now(),
		Results:     []history.ResultSummary{{FilePath: "/src/docs/w.md", Score: 0.5, Index: "docs"}},
	})

	out := buf.String()
	assert.Contains(t, out, `Query #7: "widgets"`)
	assert.Contains(t, out, "1. 0.500 /src/docs/w.md [docs]")
}

func TestPrinter_RenderHistoryStats_SortsIndexes(t *testing.T) {
	// Given: stats over several indexes
	p, buf := newTestPrinter()
	st := &history.Stats{
		Total:           6,
		PerIndex:        map[string]int{"notes": 1, "*": 2, "docs": 3},
		AverageDuration: 4 * time.Millisecond,
		ZeroResults:     1,
	}

	// When: rendering
	p.RenderHistoryStats(st)

	// Then: per-index counts are listed by name
	out := buf.String()
	assert.Contains(t, out, "Queries:")
	assert.Contains(t, out, "4ms")
	star, docs, notes := strings.Index(out, "  *:"), strings.Index(out, "docs:"), strings.Index(out, "notes:")
	assert.True(t, star < docs && docs < notes, "want sorted index names in:\n%s", out)
}

func TestPrinter_RenderJSON(t *testing.T) {
	p, buf := newTestPrinter()

	require.NoError(t, p.RenderJSON(map[string]int{"files": 3}))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3, decoded["files"])
	assert.Contains(t, buf.String(), "\n  \"files\"")
}

func TestExcerpt_Truncates(t *testing.T) {
	long := strings.Repeat("é", excerptLen+10)

	got := excerpt("  " + long + "  ")

	assert.Equal(t, excerptLen+1, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, "short", excerpt(" short "))
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"just now", now.Add(-10 * time.Second), "just now"},
		{"one minute", now.Add(-90 * time.Second), "1 minute ago"},
		{"minutes", now.Add(-5 * time.Minute), "5 minutes ago"},
		{"hours", now.Add(-3 * time.Hour), "3 hours ago"},
		{"one day", now.Add(-30 * time.Hour), "1 day ago"},
		{"old", time.Date(2024, 1, 2, 15, 4, 0, 0, time.Local), "2024-01-02 15:04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTime(tt.t))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.bytes))
		})
	}
}

package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/ragindex/internal/history"
	"github.com/Aman-CERP/ragindex/internal/index"
)

const resultRule = "--------------------------------------------------------------------------------"

// FormatQueryResults formats ranked chunks as markdown.
func FormatQueryResults(query string, results []*index.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Results for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d result", len(results)))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("### %d. %s (score: %.3f)\n\n", i+1, r.FilePath, r.Score))
		sb.WriteString(fmt.Sprintf("Index: `%s` | Location: chars %d-%d\n", r.Index, r.StartChar, r.EndChar))
		if reason := generateMatchReason(r); reason != "" {
			sb.WriteString(fmt.Sprintf("Why: %s\n", reason))
		}
		sb.WriteString("\n")
		sb.WriteString(r.Text)
		sb.WriteString("\n")
		sb.WriteString(resultRule)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// ToQueryResultOutput converts a search result to the structured output format.
func ToQueryResultOutput(r *index.SearchResult) QueryResultOutput {
	if r == nil {
		return QueryResultOutput{}
	}
	return QueryResultOutput{
		Index:         r.Index,
		FilePath:      r.FilePath,
		Text:          r.Text,
		Score:         r.Score,
		SemanticScore: r.SemanticScore,
		KeywordScore:  r.KeywordScore,
		StartChar:     r.StartChar,
		EndChar:       r.EndChar,
		MatchedTerms:  r.MatchedTerms,
		MatchReason:   generateMatchReason(r),
	}
}

// generateMatchReason explains which legs of the hybrid search found r.
func generateMatchReason(r *index.SearchResult) string {
	if r == nil {
		return ""
	}

	var parts []string
	if r.SemanticScore > 0 {
		parts = append(parts, fmt.Sprintf("semantic %.3f", r.SemanticScore))
	}
	if len(r.MatchedTerms) > 0 {
		terms := r.MatchedTerms
		if len(terms) > 5 {
			terms = terms[:5]
		}
		parts = append(parts, fmt.Sprintf("matched: %s", strings.Join(terms, ", ")))
	}
	if r.SemanticScore > 0 && r.KeywordScore > 0 {
		parts = append(parts, "found by both semantic and keyword search")
	}

	if len(parts) == 0 {
		return "matched content"
	}
	return strings.Join(parts, "; ")
}

// FormatIndexList formats index summaries as markdown.
func FormatIndexList(indexes []IndexSummary) string {
	if len(indexes) == 0 {
		return "No indexes available"
	}

	var sb strings.Builder
	sb.WriteString("## Available Indexes\n\n")
	for _, idx := range indexes {
		writeSummary(&sb, idx)
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeSummary(sb *strings.Builder, idx IndexSummary) {
	sb.WriteString(fmt.Sprintf("### %s\n\n", idx.Name))
	if idx.Source != "" {
		sb.WriteString(fmt.Sprintf("- Source: %s\n", idx.Source))
	}
	sb.WriteString(fmt.Sprintf("- Files: %d\n", idx.Files))
	sb.WriteString(fmt.Sprintf("- Chunks: %d\n", idx.Chunks))
	sb.WriteString(fmt.Sprintf("- Vectors: %d\n", idx.Vectors))
	sb.WriteString(fmt.Sprintf("- Size: %s\n", humanSize(idx.SizeBytes)))
	sb.WriteString(fmt.Sprintf("- Backend: %s, model %s (%d dims)\n", idx.Backend, idx.Model, idx.Dimension))
	if idx.LastIndexed != "" {
		sb.WriteString(fmt.Sprintf("- Last indexed: %s\n", idx.LastIndexed))
	}
	sb.WriteString(fmt.Sprintf("- Status: %s\n", idx.Status))
}

// FormatIndexInfo formats index details and its first files as markdown.
func FormatIndexInfo(info GetIndexInfoOutput) string {
	var sb strings.Builder
	writeSummary(&sb, info.Index)

	if p := info.Indexing; p != nil && p.Status == "indexing" {
		sb.WriteString(fmt.Sprintf("\n**Indexing:** %.1f%% (%d/%d files), stage %s\n",
			p.ProgressPct, p.FilesProcessed, p.FilesTotal, p.Stage))
	} else if p != nil && p.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("\n**Last pass failed:** %s\n", p.ErrorMessage))
	}

	sb.WriteString(fmt.Sprintf("\nIndexed Files (%d):\n", info.TotalFiles))
	for _, f := range info.Files {
		sb.WriteString(fmt.Sprintf("  %s\n", f))
	}
	if more := info.TotalFiles - len(info.Files); more > 0 {
		sb.WriteString(fmt.Sprintf("  ... and %d more files\n", more))
	}
	return sb.String()
}

// FormatRefresh formats the outcome of refresh_index.
func FormatRefresh(out RefreshIndexOutput) string {
	if out.Scheduled {
		return fmt.Sprintf("Refresh of index '%s' scheduled in the background. Use get_index_info to follow progress.\n", out.Index)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Refreshed index '%s'\n", out.Index))
	sb.WriteString(fmt.Sprintf("Files indexed: %d\n", out.FilesIndexed))
	sb.WriteString(fmt.Sprintf("Files unchanged: %d\n", out.FilesUnchanged))
	sb.WriteString(fmt.Sprintf("Files removed: %d\n", out.FilesRemoved))
	if out.FilesFailed > 0 {
		sb.WriteString(fmt.Sprintf("Files failed: %d\n", out.FilesFailed))
	}
	sb.WriteString(fmt.Sprintf("Chunks created: %d\n", out.ChunksCreated))
	sb.WriteString(fmt.Sprintf("Took: %s\n", time.Duration(out.DurationMS)*time.Millisecond))
	return sb.String()
}

// FormatFileMatches formats search_files output.
func FormatFileMatches(out SearchFilesOutput) string {
	if out.Total == 0 {
		return fmt.Sprintf("No files found matching pattern: %s", out.Pattern)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d files matching '%s':\n\n", out.Total, out.Pattern))
	for _, m := range out.Matches {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", m.Index, m.Path))
	}
	if more := out.Total - len(out.Matches); more > 0 {
		sb.WriteString(fmt.Sprintf("\n... and %d more files", more))
	}
	return sb.String()
}

// ToHistoryEntry converts a stored history entry to the output format.
func ToHistoryEntry(e *history.Entry) HistoryEntry {
	out := HistoryEntry{
		ID:          e.ID,
		Query:       e.Query,
		Index:       e.Index,
		TopK:        e.TopK,
		ResultCount: e.ResultCount,
		DurationMS:  e.Duration.Milliseconds(),
		Timestamp:   e.Timestamp.Format(time.RFC3339),
	}
	for _, r := range e.Results {
		out.Results = append(out.Results, HistoryResult{Index: r.Index, FilePath: r.FilePath, Score: r.Score})
	}
	return out
}

// FormatHistory formats recorded queries, newest first.
func FormatHistory(entries []HistoryEntry) string {
	if len(entries) == 0 {
		return "No queries recorded"
	}

	var sb strings.Builder
	sb.WriteString("## Query History\n\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("- #%d %s [%s] \"%s\" -> %d results in %dms\n",
			e.ID, e.Timestamp, e.Index, e.Query, e.ResultCount, e.DurationMS))
		for _, r := range e.Results {
			sb.WriteString(fmt.Sprintf("    %.3f %s\n", r.Score, r.FilePath))
		}
	}
	return sb.String()
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

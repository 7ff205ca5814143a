package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/ragindex/internal/async"
	"github.com/Aman-CERP/ragindex/internal/history"
	"github.com/Aman-CERP/ragindex/internal/index"
)

// excerptLen bounds the chunk text shown per query result.
const excerptLen = 300

// Printer renders command output: index stats, query results, file lists and
// query history.
type Printer struct {
	out    io.Writer
	styles Styles
}

// NewPrinter creates a printer. Colors are disabled when noColor is set or
// out is not a terminal.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	return &Printer{
		out:    out,
		styles: GetStyles(noColor || !IsTTY(out) || DetectNoColor()),
	}
}

// RenderStats displays index statistics, optionally with the progress of the
// latest pass.
func (p *Printer) RenderStats(st *index.Stats, progress *async.IndexProgressSnapshot) {
	_, _ = fmt.Fprintf(p.out, "%s\n\n", p.styles.Header.Render("Index: "+st.Name))

	if st.Source != "" {
		p.field("Source", st.Source)
	}
	p.field("Files", fmt.Sprintf("%d", st.Files))
	p.field("Chunks", fmt.Sprintf("%d", st.Chunks))
	vectors := fmt.Sprintf("%d", st.Vectors)
	if st.TombstonedVectors > 0 {
		vectors += p.styles.Dim.Render(fmt.Sprintf(" (+%d tombstoned)", st.TombstonedVectors))
	}
	p.field("Vectors", vectors)
	p.field("Size", FormatBytes(st.SizeBytes))
	p.field("Backend", st.Backend)
	p.field("Model", fmt.Sprintf("%s (%d dims)", st.Model, st.Dimension))
	if !st.LastIndexed.IsZero() {
		p.field("Last indexed", formatTime(st.LastIndexed))
	}
	if progress != nil {
		status := p.renderStatus(progress.Status)
		if progress.Status == string(async.StatusIndexing) {
			status += fmt.Sprintf(" %.1f%% (%d/%d files)", progress.ProgressPct, progress.FilesProcessed, progress.FilesTotal)
		}
		p.field("Status", status)
		if progress.ErrorMessage != "" {
			p.field("Last error", p.styles.Error.Render(progress.ErrorMessage))
		}
	}
	_, _ = fmt.Fprintln(p.out)
}

func (p *Printer) field(label, value string) {
	_, _ = fmt.Fprintf(p.out, "  %s %s\n", p.styles.Label.Render(fmt.Sprintf("%-13s", label+":")), value)
}

// RenderResults displays ranked query results.
func (p *Printer) RenderResults(query string, results []*index.SearchResult) {
	if len(results) == 0 {
		_, _ = fmt.Fprintf(p.out, "No results found for %q\n", query)
		return
	}

	_, _ = fmt.Fprintf(p.out, "%s\n\n", p.styles.Header.Render(fmt.Sprintf("%d results for %q", len(results), query)))
	for i, r := range results {
		_, _ = fmt.Fprintf(p.out, "%d. %s %s %s\n", i+1,
			p.styles.Score.Render(fmt.Sprintf("%.3f", r.Score)),
			p.styles.Path.Render(r.FilePath),
			p.styles.Index.Render("["+r.Index+"]"))
		_, _ = fmt.Fprintf(p.out, "   %s\n", p.styles.Label.Render(fmt.Sprintf(
			"chars %d-%d  semantic %.3f  keyword %.3f", r.StartChar, r.EndChar, r.SemanticScore, r.KeywordScore)))
		if len(r.MatchedTerms) > 0 {
			_, _ = fmt.Fprintf(p.out, "   %s %s\n", p.styles.Label.Render("matched:"), strings.Join(r.MatchedTerms, ", "))
		}
		_, _ = fmt.Fprintln(p.out, p.styles.Panel.Render(excerpt(r.Text)))
		_, _ = fmt.Fprintln(p.out)
	}
}

// Heading prints a section title.
func (p *Printer) Heading(text string) {
	_, _ = fmt.Fprintln(p.out, p.styles.Header.Render(text))
}

// RenderFiles lists indexed files. total is the count before truncation.
func (p *Printer) RenderFiles(files []*index.FileInfo, total int) {
	if total == 0 {
		_, _ = fmt.Fprintln(p.out, "No files found")
		return
	}
	for _, f := range files {
		_, _ = fmt.Fprintf(p.out, "%s  %s\n", f.Path, p.styles.Dim.Render(FormatBytes(f.Size)))
	}
	if more := total - len(files); more > 0 {
		_, _ = fmt.Fprintf(p.out, "... and %d more files\n", more)
	}
}

// RenderHistory lists recorded queries, newest first.
func (p *Printer) RenderHistory(entries []*history.Entry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(p.out, "No queries recorded")
		return
	}
	for _, e := range entries {
		_, _ = fmt.Fprintf(p.out, "%s %s %s %q %s\n",
			p.styles.Dim.Render(fmt.Sprintf("#%d", e.ID)),
			p.styles.Label.Render(e.Timestamp.Local().Format("2006-01-02 15:04")),
			p.styles.Index.Render("["+e.Index+"]"),
			e.Query,
			p.styles.Dim.Render(fmt.Sprintf("%d results, %s", e.ResultCount, e.Duration.Round(time.Millisecond))))
	}
}

// RenderEntry displays one recorded query with its results.
func (p *Printer) RenderEntry(e *history.Entry) {
	_, _ = fmt.Fprintf(p.out, "%s\n\n", p.styles.Header.Render(fmt.Sprintf("Query #%d: %q", e.ID, e.Query)))
	p.field("Index", e.Index)
	p.field("When", e.Timestamp.Local().Format(time.RFC3339))
	p.field("Top K", fmt.Sprintf("%d", e.TopK))
	p.field("Took", e.Duration.Round(time.Millisecond).String())
	p.field("Results", fmt.Sprintf("%d", e.ResultCount))
	for i, r := range e.Results {
		_, _ = fmt.Fprintf(p.out, "  %d. %s %s %s\n", i+1,
			p.styles.Score.Render(fmt.Sprintf("%.3f", r.Score)), r.FilePath, p.styles.Index.Render("["+r.Index+"]"))
	}
}

// RenderHistoryStats displays aggregate query statistics.
func (p *Printer) RenderHistoryStats(st *history.Stats) {
	_, _ = fmt.Fprintf(p.out, "%s\n\n", p.styles.Header.Render("Query history"))
	p.field("Queries", fmt.Sprintf("%d", st.Total))
	p.field("No results", fmt.Sprintf("%d", st.ZeroResults))
	p.field("Avg latency", st.AverageDuration.Round(time.Millisecond).String())
	names := make([]string, 0, len(st.PerIndex))
	for name := range st.PerIndex {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.field("  "+name, fmt.Sprintf("%d", st.PerIndex[name]))
	}
}

// RenderJSON outputs v as indented JSON.
func (p *Printer) RenderJSON(v any) error {
	encoder := json.NewEncoder(p.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// renderStatus formats a status string with color.
func (p *Printer) renderStatus(status string) string {
	switch async.IndexingStatus(status) {
	case async.StatusReady:
		return p.styles.Success.Render(status)
	case async.StatusIndexing:
		return p.styles.Warning.Render(status)
	case async.StatusError:
		return p.styles.Error.Render(status)
	default:
		return status
	}
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= excerptLen {
		return text
	}
	return string(runes[:excerptLen]) + "…"
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
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

package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/history"
	"github.com/Aman-CERP/ragindex/internal/index"
	"github.com/Aman-CERP/ragindex/pkg/version"
)

// ServerName is the implementation name announced to clients.
const ServerName = "ragindex"

// Server is the MCP server for ragindex.
// It bridges AI clients with the indexes held by a registry.
type Server struct {
	mcp      *mcp.Server
	registry *index.Registry
	history  *history.Store
	config   *config.Config
	logger   *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "query",
		Description: "Search indexed documents with hybrid semantic and keyword ranking. Searches every index unless index_name is given.",
	},
	{
		Name:        "list_indexes",
		Description: "List available indexes with file, chunk and vector counts.",
	},
	{
		Name:        "refresh_index",
		Description: "Re-index the source directory of an index. New and changed files are embedded, deleted files are dropped.",
	},
	{
		Name:        "get_index_info",
		Description: "Show statistics, indexing progress and the first 50 files of an index.",
	},
	{
		Name:        "search_files",
		Description: "Find indexed files whose path contains a pattern (case-insensitive, first 100 matches).",
	},
	{
		Name:        "query_history",
		Description: "List recent queries, optionally filtered by index or text.",
	},
}

// NewServer creates a new MCP server over the indexes of registry. hist may
// be nil, in which case query_history reports that history is disabled.
func NewServer(registry *index.Registry, hist *history.Store, cfg *config.Config) (*Server, error) {
	if registry == nil {
		return nil, errors.New("index registry is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		registry: registry,
		history:  hist,
		config:   cfg,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with loosely typed arguments and returns
// its text rendering.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "query":
		return callWith(ctx, args, s.handleQuery)
	case "list_indexes":
		return callWith(ctx, args, s.handleListIndexes)
	case "refresh_index":
		return callWith(ctx, args, s.handleRefreshIndex)
	case "get_index_info":
		return callWith(ctx, args, s.handleGetIndexInfo)
	case "search_files":
		return callWith(ctx, args, s.handleSearchFiles)
	case "query_history":
		return callWith(ctx, args, s.handleQueryHistory)
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func callWith[In, Out any](ctx context.Context, args map[string]any, h func(context.Context, In) (Out, string, error)) (string, error) {
	var in In
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return "", NewInvalidParamsError(err.Error())
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return "", NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
		}
	}
	_, text, err := h(ctx, in)
	if err != nil {
		return "", MapError(err)
	}
	return text, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, toolDef("query"), adapt(s.handleQuery))
	mcp.AddTool(s.mcp, toolDef("list_indexes"), adapt(s.handleListIndexes))
	mcp.AddTool(s.mcp, toolDef("refresh_index"), adapt(s.handleRefreshIndex))
	mcp.AddTool(s.mcp, toolDef("get_index_info"), adapt(s.handleGetIndexInfo))
	mcp.AddTool(s.mcp, toolDef("search_files"), adapt(s.handleSearchFiles))
	mcp.AddTool(s.mcp, toolDef("query_history"), adapt(s.handleQueryHistory))

	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func toolDef(name string) *mcp.Tool {
	for _, t := range tools {
		if t.Name == name {
			return &mcp.Tool{Name: t.Name, Description: t.Description}
		}
	}
	panic("mcp: unknown tool " + name)
}

// adapt turns a handler into an SDK tool handler that returns both the
// markdown text and the structured output.
func adapt[In, Out any](h func(context.Context, In) (Out, string, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		out, text, err := h(ctx, in)
		if err != nil {
			var zero Out
			return nil, zero, MapError(err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	}
}

func (s *Server) handleQuery(ctx context.Context, in QueryInput) (QueryOutput, string, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(in.Query) == "" {
		return QueryOutput{}, "", NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	opts := index.NewQueryOptions(in.Query)
	opts.TopK = clampLimit(in.TopK, s.config.Search.TopK, 1, maxTopK)
	opts.SemanticWeight = s.config.Search.SemanticWeight
	opts.KeywordWeight = s.config.Search.KeywordWeight
	opts.MinScore = s.config.Search.MinScore
	if in.MinScore > 0 {
		opts.MinScore = in.MinScore
	}
	if in.IncludeKeywords != nil {
		opts.IncludeKeywords = *in.IncludeKeywords
	}

	s.logger.Info("query started",
		slog.String("request_id", requestID),
		slog.String("index", in.IndexName),
		slog.Int("top_k", opts.TopK))

	results, err := s.registry.Query(ctx, in.IndexName, opts)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("query failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return QueryOutput{}, "", err
	}

	s.logger.Info("query completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	out := QueryOutput{Query: in.Query, Results: make([]QueryResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, ToQueryResultOutput(r))
	}

	text := FormatQueryResults(in.Query, results)
	if busy := s.indexingNames(in.IndexName); len(busy) > 0 {
		text += fmt.Sprintf("\n_Still indexing: %s. Results may be incomplete._\n", strings.Join(busy, ", "))
	}
	return out, text, nil
}

// indexingNames returns the open indexes with a pass in progress, limited to
// name when it is set.
func (s *Server) indexingNames(name string) []string {
	names := []string{name}
	if name == "" {
		var err error
		if names, err = s.registry.Names(); err != nil {
			return nil
		}
	}
	var busy []string
	for _, n := range names {
		m, err := s.registry.Get(n)
		if err != nil {
			continue
		}
		if p := m.Progress(); p != nil && p.IsIndexing() {
			busy = append(busy, n)
		}
	}
	return busy
}

func (s *Server) handleListIndexes(ctx context.Context, _ ListIndexesInput) (ListIndexesOutput, string, error) {
	names, err := s.registry.Names()
	if err != nil {
		return ListIndexesOutput{}, "", err
	}

	out := ListIndexesOutput{Indexes: make([]IndexSummary, 0, len(names))}
	for _, name := range names {
		summary, err := s.summarize(ctx, name)
		if err != nil {
			s.logger.Warn("index_stats_failed", slog.String("index", name), slog.String("error", err.Error()))
			continue
		}
		out.Indexes = append(out.Indexes, summary)
	}
	return out, FormatIndexList(out.Indexes), nil
}

func (s *Server) summarize(ctx context.Context, name string) (IndexSummary, error) {
	m, err := s.registry.Get(name)
	if err != nil {
		return IndexSummary{}, err
	}
	st, err := m.Stats(ctx)
	if err != nil {
		return IndexSummary{}, err
	}

	summary := IndexSummary{
		Name:      st.Name,
		Source:    st.Source,
		Files:     st.Files,
		Chunks:    st.Chunks,
		Vectors:   st.Vectors,
		SizeBytes: st.SizeBytes,
		Backend:   st.Backend,
		Model:     st.Model,
		Dimension: st.Dimension,
		Status:    "ready",
	}
	if !st.LastIndexed.IsZero() {
		summary.LastIndexed = st.LastIndexed.Format(time.RFC3339)
	}
	if p := m.Progress(); p != nil {
		summary.Status = p.Snapshot().Status
	}
	return summary, nil
}

func (s *Server) handleRefreshIndex(ctx context.Context, in RefreshIndexInput) (RefreshIndexOutput, string, error) {
	if in.IndexName == "" {
		return RefreshIndexOutput{}, "", NewInvalidParamsError("index_name is required")
	}

	out := RefreshIndexOutput{Index: in.IndexName}
	if !in.Wait {
		if err := s.registry.TriggerRefresh(in.IndexName); err != nil {
			return RefreshIndexOutput{}, "", err
		}
		out.Scheduled = true
		s.logger.Info("refresh scheduled", slog.String("index", in.IndexName))
		return out, FormatRefresh(out), nil
	}

	result, err := s.registry.Refresh(ctx, in.IndexName)
	if err != nil {
		return RefreshIndexOutput{}, "", err
	}
	out.FilesIndexed = result.FilesIndexed
	out.FilesUnchanged = result.FilesUnchanged
	out.FilesRemoved = result.FilesRemoved
	out.FilesFailed = result.FilesFailed
	out.ChunksCreated = result.ChunksCreated
	out.DurationMS = result.Duration.Milliseconds()
	return out, FormatRefresh(out), nil
}

func (s *Server) handleGetIndexInfo(ctx context.Context, in GetIndexInfoInput) (GetIndexInfoOutput, string, error) {
	if in.IndexName == "" {
		return GetIndexInfoOutput{}, "", NewInvalidParamsError("index_name is required")
	}
	summary, err := s.summarize(ctx, in.IndexName)
	if err != nil {
		return GetIndexInfoOutput{}, "", err
	}
	m, err := s.registry.Get(in.IndexName)
	if err != nil {
		return GetIndexInfoOutput{}, "", err
	}
	files, err := m.ListFiles(ctx)
	if err != nil {
		return GetIndexInfoOutput{}, "", err
	}

	out := GetIndexInfoOutput{Index: summary, TotalFiles: len(files)}
	for i, f := range files {
		if i == maxInfoFiles {
			break
		}
		out.Files = append(out.Files, f.Path)
	}
	if p := m.Progress(); p != nil {
		snap := p.Snapshot()
		out.Indexing = &IndexingProgress{
			Status:         snap.Status,
			Stage:          snap.Stage,
			FilesTotal:     snap.FilesTotal,
			FilesProcessed: snap.FilesProcessed,
			FilesFailed:    snap.FilesFailed,
			ChunksIndexed:  snap.ChunksIndexed,
			ProgressPct:    snap.ProgressPct,
			ElapsedSeconds: snap.ElapsedSeconds,
			ErrorMessage:   snap.ErrorMessage,
		}
	}
	return out, FormatIndexInfo(out), nil
}

func (s *Server) handleSearchFiles(ctx context.Context, in SearchFilesInput) (SearchFilesOutput, string, error) {
	names := []string{in.IndexName}
	if in.IndexName == "" {
		var err error
		if names, err = s.registry.Names(); err != nil {
			return SearchFilesOutput{}, "", err
		}
	}

	var matches []FileMatch
	for _, name := range names {
		m, err := s.registry.Get(name)
		if err != nil {
			return SearchFilesOutput{}, "", err
		}
		files, err := m.SearchFiles(ctx, in.Pattern)
		if err != nil {
			return SearchFilesOutput{}, "", err
		}
		for _, f := range files {
			matches = append(matches, FileMatch{Index: name, Path: f.Path})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Path != matches[j].Path {
			return matches[i].Path < matches[j].Path
		}
		return matches[i].Index < matches[j].Index
	})

	out := SearchFilesOutput{Pattern: in.Pattern, Total: len(matches), Matches: matches}
	if len(out.Matches) > maxFileMatches {
		out.Matches = out.Matches[:maxFileMatches]
	}
	if out.Matches == nil {
		out.Matches = []FileMatch{}
	}
	return out, FormatFileMatches(out), nil
}

func (s *Server) handleQueryHistory(ctx context.Context, in QueryHistoryInput) (QueryHistoryOutput, string, error) {
	if s.history == nil {
		return QueryHistoryOutput{}, "", NewInvalidParamsError("query history is disabled")
	}
	limit := clampLimit(in.Limit, defaultHistoryLimit, 1, maxHistoryLimit)

	var (
		entries []*history.Entry
		err     error
	)
	if in.Search != "" {
		entries, err = s.history.SearchHistory(ctx, in.Search, limit)
	} else {
		entries, err = s.history.GetHistory(ctx, limit, in.IndexName, in.IncludeResults)
	}
	if err != nil {
		return QueryHistoryOutput{}, "", err
	}

	out := QueryHistoryOutput{Entries: make([]HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, ToHistoryEntry(e))
	}
	return out, FormatHistory(out.Entries), nil
}

// Serve runs the server on the given transport until ctx is canceled or the
// client disconnects.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

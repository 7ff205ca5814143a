package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxResourceSize is the maximum file size for resources (1MB).
const MaxResourceSize = 1024 * 1024

const (
	uriScheme       = "ragindex://"
	historyStatsURI = uriScheme + "history/stats"
	indexURIPrefix  = uriScheme + "indexes/"
)

// registerResources registers the index, file and history resources.
func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: indexURIPrefix + "{name}",
		Name:        "index-info",
		Description: "Statistics and files of an index",
		MIMEType:    "application/json",
	}, s.handleIndexResource)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "file:///{+path}",
		Name:        "indexed-file",
		Description: "Content of a file held by one of the indexes",
	}, s.handleFileResource)

	if s.history != nil {
		s.mcp.AddResource(&mcp.Resource{
			URI:         historyStatsURI,
			Name:        "query_history_stats",
			Description: "Aggregate statistics of recorded queries",
			MIMEType:    "application/json",
		}, s.handleHistoryStatsResource)
	}
}

func (s *Server) handleIndexResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	name := strings.TrimPrefix(req.Params.URI, indexURIPrefix)
	if name == req.Params.URI || name == "" {
		return nil, NewResourceNotFoundError(req.Params.URI)
	}

	info, _, err := s.handleGetIndexInfo(ctx, GetIndexInfoInput{IndexName: name})
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(req.Params.URI, info)
}

func (s *Server) handleHistoryStatsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	stats, err := s.history.Stats(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(req.Params.URI, stats)
}

// handleFileResource serves a file only when some index holds it.
func (s *Server) handleFileResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	path, ok := filePathFromURI(req.Params.URI)
	if !ok {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", req.Params.URI))
	}

	indexed, err := s.isIndexed(ctx, path)
	if err != nil {
		return nil, MapError(err)
	}
	if !indexed {
		return nil, NewInvalidParamsError(fmt.Sprintf("file not indexed: %s", path))
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{
				Code:    ErrCodeFileNotFound,
				Message: fmt.Sprintf("file not found: %s", path),
			}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize),
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: MimeTypeForPath(path),
			Text:     string(content),
		}},
	}, nil
}

func (s *Server) isIndexed(ctx context.Context, path string) (bool, error) {
	names, err := s.registry.Names()
	if err != nil {
		return false, err
	}
	for _, name := range names {
		m, err := s.registry.Get(name)
		if err != nil {
			return false, err
		}
		f, err := m.File(ctx, path)
		if err != nil {
			return false, err
		}
		if f != nil {
			return true, nil
		}
	}
	return false, nil
}

// filePathFromURI extracts an absolute, clean path from a file:// URI.
// Relative paths and traversal components are rejected.
func filePathFromURI(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	if !filepath.IsAbs(u.Path) {
		return "", false
	}
	for _, part := range strings.Split(u.Path, "/") {
		if part == ".." {
			return "", false
		}
	}
	return filepath.Clean(u.Path), true
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

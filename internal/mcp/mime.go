package mcp

import (
	"mime"
	"path/filepath"
	"strings"
)

// textTypes covers the document types ragindex indexes by default and the
// source files people commonly add to file_types.
var textTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".mdx":      "text/markdown",
	".txt":      "text/plain",
	".rst":      "text/x-rst",
	".adoc":     "text/asciidoc",
	".org":      "text/x-org",

	".py":   "text/x-python",
	".js":   "text/javascript",
	".mjs":  "text/javascript",
	".ts":   "text/typescript",
	".tsx":  "text/typescript",
	".go":   "text/x-go",
	".rs":   "text/x-rust",
	".java": "text/x-java",

	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".toml": "text/x-toml",
	".csv":  "text/csv",
	".html": "text/html",
	".sql":  "text/x-sql",
	".sh":   "text/x-sh",
}

// MimeTypeForPath returns the MIME type served for an indexed file. Unknown
// or non-text types are served as text/plain since only text is indexed.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "text/plain"
	}
	if t, ok := textTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "text/") {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return strings.TrimSpace(t)
	}
	return "text/plain"
}

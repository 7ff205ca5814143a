// Package loader discovers and reads the documents of an indexed directory.
package loader

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/encoding/charmap"

	"github.com/Aman-CERP/ragindex/internal/errors"
)

// DefaultMaxFileSize skips files larger than 10MB.
const DefaultMaxFileSize = 10 * 1024 * 1024

// Document is one loaded file.
type Document struct {
	Content  string
	Path     string // absolute
	Type     string // extension with leading dot
	Size     int64
	Modified time.Time
}

// FileInfo describes a candidate file found by Walk.
type FileInfo struct {
	Path     string // absolute
	RelPath  string // slash separated, relative to the walked directory
	Size     int64
	Modified time.Time
}

// Loader selects files by extension and exclude patterns.
type Loader struct {
	fileTypes   map[string]struct{}
	exclude     []string
	maxFileSize int64
}

// Option configures a Loader.
type Option func(*Loader)

// WithMaxFileSize overrides DefaultMaxFileSize. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(l *Loader) { l.maxFileSize = n }
}

// New creates a Loader. fileTypes are extensions with a leading dot, matched
// case-insensitively. exclude patterns use doublestar syntax against the path
// relative to the walked directory; a pattern ending in "/" matches a
// directory of that name at any depth, and a pattern without "/" is also
// tried against the base name.
func New(fileTypes, exclude []string, opts ...Option) *Loader {
	l := &Loader{
		fileTypes:   make(map[string]struct{}, len(fileTypes)),
		maxFileSize: DefaultMaxFileSize,
	}
	for _, ext := range fileTypes {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		l.fileTypes[ext] = struct{}{}
	}
	for _, p := range exclude {
		if p = strings.TrimSpace(p); p != "" {
			l.exclude = append(l.exclude, filepath.ToSlash(p))
		}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supported reports whether path has an allowed extension.
func (l *Loader) Supported(path string) bool {
	_, ok := l.fileTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Excluded reports whether relPath (slash separated) matches an exclude
// pattern. Directories are also tested in their trailing-slash form.
func (l *Loader) Excluded(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	candidates := []string{relPath}
	if isDir {
		candidates = append(candidates, relPath+"/")
	}
	base := relPath
	if i := strings.LastIndex(relPath, "/"); i >= 0 {
		base = relPath[i+1:]
	}

	for _, pattern := range l.exclude {
		if strings.HasSuffix(pattern, "/") {
			if matchComponent(relPath, isDir, strings.TrimSuffix(pattern, "/")) {
				return true
			}
			continue
		}
		for _, c := range candidates {
			if ok, _ := doublestar.Match(pattern, c); ok {
				return true
			}
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
		}
	}
	return false
}

// matchComponent reports whether any directory component of relPath matches
// name. A file's own base name is not a directory component.
func matchComponent(relPath string, isDir bool, name string) bool {
	parts := strings.Split(relPath, "/")
	if !isDir {
		parts = parts[:len(parts)-1]
	}
	for _, part := range parts {
		if ok, _ := doublestar.Match(name, part); ok {
			return true
		}
	}
	return false
}

// Walk calls fn for every supported, non-excluded regular file under dir, in
// lexical order. Excluded directories are not descended into. A missing dir
// returns ERR_201_FILE_NOT_FOUND.
func (l *Loader) Walk(ctx context.Context, dir string, fn func(FileInfo) error) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return errors.New(errors.ErrCodeInvalidPath, "invalid directory", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return errors.New(errors.ErrCodeFileNotFound, "directory does not exist: "+dir, err)
		}
		return errors.New(errors.ErrCodeStorageFailed, "cannot access directory: "+dir, err)
	}
	if !info.IsDir() {
		return errors.New(errors.ErrCodeInvalidPath, "not a directory: "+dir, nil)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			slog.Debug("walk_skip_unreadable", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if l.Excluded(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !l.Supported(path) || l.Excluded(rel, false) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if l.maxFileSize > 0 && fi.Size() > l.maxFileSize {
			slog.Debug("walk_skip_large_file", slog.String("path", path), slog.Int64("size", fi.Size()))
			return nil
		}
		return fn(FileInfo{Path: path, RelPath: rel, Size: fi.Size(), Modified: fi.ModTime()})
	})
}

// LoadDirectory loads every matching document under dir. A missing directory
// is logged and yields no documents. Unreadable files are logged and skipped.
func (l *Loader) LoadDirectory(ctx context.Context, dir string) ([]*Document, error) {
	var docs []*Document
	err := l.Walk(ctx, dir, func(fi FileInfo) error {
		doc, err := l.LoadFile(fi.Path)
		if err != nil {
			slog.Error("load_file_failed", slog.String("path", fi.Path), slog.String("error", err.Error()))
			return nil
		}
		if doc != nil {
			docs = append(docs, doc)
		}
		return nil
	})
	if errors.HasCode(err, errors.ErrCodeFileNotFound) {
		slog.Error("directory_not_found", slog.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	slog.Info("documents_loaded", slog.String("dir", dir), slog.Int("count", len(docs)))
	return docs, nil
}

// LoadFile reads one file. It returns nil, nil for an unsupported extension
// or a binary file.
func (l *Loader) LoadFile(path string) (*Document, error) {
	if !l.Supported(path) {
		return nil, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidPath, "invalid path", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "file does not exist: "+path, err)
		}
		return nil, errors.New(errors.ErrCodeStorageFailed, "cannot stat file", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "cannot read file", err)
	}
	if isBinary(data) {
		slog.Debug("load_skip_binary", slog.String("path", abs))
		return nil, nil
	}

	content, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", abs, err)
	}

	return &Document{
		Content:  content,
		Path:     abs,
		Type:     filepath.Ext(abs),
		Size:     info.Size(),
		Modified: info.ModTime(),
	}, nil
}

// decode returns data as UTF-8, reading it as Latin-1 when it is not valid
// UTF-8.
func decode(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// isBinary looks for a NUL byte in the first 512 bytes.
func isBinary(data []byte) bool {
	if len(data) > 512 {
		data = data[:512]
	}
	return bytes.IndexByte(data, 0) >= 0
}

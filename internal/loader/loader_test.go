package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/errors"
)

func writeFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func relPaths(t *testing.T, root string, docs []*Document) []string {
	t.Helper()
	var out []string
	for _, d := range docs {
		rel, err := filepath.Rel(root, d.Path)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestLoadDirectory_FiltersByTypeAndExclude(t *testing.T) {
	// Given: a tree with allowed, disallowed and excluded files
	root := t.TempDir()
	writeFile(t, root, "README.md", []byte("# readme"))
	writeFile(t, root, "src/main.py", []byte("print('hi')"))
	writeFile(t, root, "src/image.png", []byte("not text"))
	writeFile(t, root, "node_modules/pkg/index.js", []byte("module.exports = 1"))
	writeFile(t, root, ".git/HEAD.txt", []byte("ref"))
	writeFile(t, root, "docs/NOTES.TXT", []byte("upper case extension"))

	l := New([]string{".md", ".py", ".js", ".txt"}, []string{"node_modules/**", ".git/**"})

	// When: loading the directory
	docs, err := l.LoadDirectory(context.Background(), root)

	// Then: only allowed, non-excluded files are returned in lexical order
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "docs/NOTES.TXT", "src/main.py"}, relPaths(t, root, docs))
	assert.Equal(t, ".md", docs[0].Type)
	assert.Equal(t, "# readme", docs[0].Content)
	assert.Equal(t, int64(8), docs[0].Size)
	assert.False(t, docs[0].Modified.IsZero())
	assert.True(t, filepath.IsAbs(docs[0].Path))
}

func TestExcluded(t *testing.T) {
	l := New([]string{".md"}, []string{"build/", "*.log", "docs/private/**", "**/tmp/**"})

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"build", true, true},
		{"a/b/build", true, true},
		{"a/build/file.md", false, true},
		{"build.md", false, false},
		{"server.log", false, true},
		{"nested/deep/server.log", false, true},
		{"docs/private", true, true},
		{"docs/private/x.md", false, true},
		{"docs/public/x.md", false, false},
		{"x/tmp/y.md", false, true},
		{"notes.md", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Excluded(tt.rel, tt.isDir))
		})
	}
}

func TestSupported_NormalizesExtensions(t *testing.T) {
	l := New([]string{"MD", " .py ", ""}, nil)

	assert.True(t, l.Supported("a/b.md"))
	assert.True(t, l.Supported("b.PY"))
	assert.False(t, l.Supported("Makefile"))
}

func TestLoadFile_Latin1Fallback(t *testing.T) {
	// Given: a file that is not valid UTF-8
	root := t.TempDir()
	path := writeFile(t, root, "legacy.txt", []byte{'c', 'a', 'f', 0xE9})

	// When: loading it
	doc, err := New([]string{".txt"}, nil).LoadFile(path)

	// Then: it is decoded as Latin-1
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "café", doc.Content)
}

func TestLoadFile_SkipsUnsupportedAndBinary(t *testing.T) {
	root := t.TempDir()
	l := New([]string{".txt"}, nil)

	doc, err := l.LoadFile(writeFile(t, root, "a.bin", []byte("data")))
	assert.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = l.LoadFile(writeFile(t, root, "b.txt", []byte("text\x00more")))
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := New([]string{".txt"}, nil).LoadFile(filepath.Join(t.TempDir(), "gone.txt"))

	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))
}

func TestLoadDirectory_MissingDirectoryIsEmpty(t *testing.T) {
	docs, err := New([]string{".txt"}, nil).LoadDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))

	assert.NoError(t, err)
	assert.Empty(t, docs)
}

func TestWalk_Errors(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "a.txt", []byte("x"))
	l := New([]string{".txt"}, nil)
	noop := func(FileInfo) error { return nil }

	err := l.Walk(context.Background(), filepath.Join(root, "missing"), noop)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))

	err = l.Walk(context.Background(), file, noop)
	assert.Equal(t, errors.ErrCodeInvalidPath, errors.GetCode(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = l.Walk(ctx, root, noop)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalk_MaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.txt", []byte("abc"))
	writeFile(t, root, "big.txt", []byte("abcdefghij"))

	var seen []string
	err := New([]string{".txt"}, nil, WithMaxFileSize(5)).Walk(context.Background(), root, func(fi FileInfo) error {
		seen = append(seen, fi.RelPath)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"small.txt"}, seen)
}

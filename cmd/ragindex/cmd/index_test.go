package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/errors"
)

func TestIndexCmd_IndexesDirectory(t *testing.T) {
	// Given: a directory with two markdown files and one unsupported file
	env := newCLIEnv(t)
	env.writeDoc(t, "a.md", "Alpha document about widgets.")
	env.writeDoc(t, "sub/b.md", "Beta document about gadgets.")
	env.writeDoc(t, "image.png", "not text")

	// When: indexing with plain progress
	out, err := runCLI(t, "index", env.docs, "--name", "docs", "--plain")

	// Then: both documents are indexed into the named index
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 2 files indexed")
	assert.Contains(t, out, "docs")
	assert.FileExists(t, filepath.Join(env.storage, "docs", "metadata.db"))
}

func TestIndexCmd_SecondRunSkipsUnchanged(t *testing.T) {
	// Given: an indexed directory
	env := newCLIEnv(t)
	env.writeDoc(t, "a.md", "Alpha document about widgets.")
	_, err := runCLI(t, "index", env.docs, "--name", "docs", "--plain")
	require.NoError(t, err)

	// When: indexing again without changes
	out, err := runCLI(t, "index", env.docs, "--name", "docs", "--plain")

	// Then: nothing is re-indexed
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 0 files indexed")
	assert.Contains(t, out, "1 unchanged")
}

func TestIndexCmd_DefaultNameFromDirectory(t *testing.T) {
	env := newCLIEnv(t)
	env.writeDoc(t, "a.md", "Alpha.")

	_, err := runCLI(t, "index", env.docs, "--plain")

	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(env.storage, "docs"))
}

func TestIndexCmd_Errors(t *testing.T) {
	env := newCLIEnv(t)
	file := env.writeDoc(t, "a.md", "Alpha.")

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing directory", []string{"index", filepath.Join(env.home, "nope")}, errors.ErrCodeFileNotFound},
		{"not a directory", []string{"index", file}, errors.ErrCodeInvalidInput},
		{"invalid name", []string{"index", env.docs, "--name", "../escape"}, errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)

			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestIndexCmd_RequiresDirectoryArg(t *testing.T) {
	newCLIEnv(t)

	_, err := runCLI(t, "index")

	require.Error(t, err)
}

func TestDefaultIndexName(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{"/home/me/docs", "docs"},
		{"/home/me/My Notes", "My-Notes"},
		{"/home/me/.hidden", "hidden"},
		{"/", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			assert.Equal(t, tt.want, defaultIndexName(tt.dir))
		})
	}
}

func TestResolveDir(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)

	abs, err := resolveDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, abs)

	abs, err = resolveDir(".")
	require.NoError(t, err)
	assert.Equal(t, wd, abs)
}

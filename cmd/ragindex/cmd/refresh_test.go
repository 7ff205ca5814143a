package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/index"
)

func TestRefreshCmd_ByName(t *testing.T) {
	// Given: an index whose source lost a file and gained another
	env := newCLIEnv(t)
	env.indexDocs(t)
	require.NoError(t, os.Remove(filepath.Join(env.docs, "gadgets.md")))
	env.writeDoc(t, "sprockets.md", "Sprockets mesh with the main gear train.")

	// When: refreshing by index name
	out, err := runCLI(t, "refresh", "docs", "--plain")

	// Then: the new file is indexed and the deleted one removed
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 1 files indexed")
	assert.Contains(t, out, "1 unchanged, 1 removed")
}

func TestRefreshCmd_ByDirectory(t *testing.T) {
	// Given: an indexed directory
	env := newCLIEnv(t)
	env.indexDocs(t)
	env.writeDoc(t, "widgets.md", "Widgets are now configured in widgets.toml.")

	// When: refreshing by source directory
	_, err := runCLI(t, "refresh", env.docs, "--plain")
	require.NoError(t, err)

	// Then: the index still holds both files
	out, err := runCLI(t, "stats", "docs", "--json")
	require.NoError(t, err)
	var stats []index.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Files)
}

func TestRefreshCmd_Errors(t *testing.T) {
	newCLIEnv(t)
	other := t.TempDir()

	tests := []struct {
		name   string
		target string
	}{
		{"unknown name", "missing"},
		{"directory without index", other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, "refresh", tt.target)

			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeIndexNotFound, errors.GetCode(err))
		})
	}
}

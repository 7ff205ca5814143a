package cmd

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/index"
)

func TestFilesCmd(t *testing.T) {
	env := newCLIEnv(t)
	env.indexDocs(t)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{"all files", []string{"files"}, []string{"widgets.md", "gadgets.md"}, nil},
		{"pattern", []string{"files", "WIDGET"}, []string{"widgets.md"}, []string{"gadgets.md"}},
		{"no match", []string{"files", "nothing-here"}, []string{"No files found"}, nil},
		{"limited", []string{"files", "--limit", "1"}, []string{"... and 1 more files"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, tt.args...)

			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out, w)
			}
		})
	}
}

func TestFilesCmd_JSONGroupsByIndex(t *testing.T) {
	// Given: two indexes
	env := newCLIEnv(t)
	env.indexDocs(t)
	_, err := runCLI(t, "index", env.docs, "--name", "copy", "--plain")
	require.NoError(t, err)

	// When: listing as JSON
	out, err := runCLI(t, "files", "--json")
	require.NoError(t, err)

	// Then: files are keyed by index name
	var byIndex map[string][]index.FileInfo
	require.NoError(t, json.Unmarshal([]byte(out), &byIndex))
	assert.Len(t, byIndex, 2)
	for name, files := range byIndex {
		assert.Len(t, files, 2, fmt.Sprintf("index %s", name))
	}
}

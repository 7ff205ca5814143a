package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/errors"
)

func TestStatsCmd_ShowsIndex(t *testing.T) {
	// Given: an indexed directory
	env := newCLIEnv(t)
	env.indexDocs(t)

	// When: showing stats for every index
	out, err := runCLI(t, "stats")

	// Then: the index and its source are listed
	require.NoError(t, err)
	assert.Contains(t, out, "Index: docs")
	assert.Contains(t, out, env.docs)
	assert.Contains(t, out, "(64 dims)")
}

func TestStatsCmd_JSON(t *testing.T) {
	env := newCLIEnv(t)
	env.indexDocs(t)

	out, err := runCLI(t, "stats", "--json")

	require.NoError(t, err)
	var stats []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "docs", stats[0]["name"])
	assert.EqualValues(t, 2, stats[0]["files"])
}

func TestStatsCmd_NoIndexes(t *testing.T) {
	newCLIEnv(t)

	_, err := runCLI(t, "stats")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIndexNotFound, errors.GetCode(err))
}

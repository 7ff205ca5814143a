package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/errors"
)

func TestLogsCmd(t *testing.T) {
	// Given: a configured log file with mixed levels
	logFile := ""
	newCLIEnv(t, func(c *config.Config) {
		logFile = filepath.Join(filepath.Dir(c.StoragePath), "logs", "ragindex.log")
		c.Log.File = logFile
	})
	require.NoError(t, os.MkdirAll(filepath.Dir(logFile), 0o755))
	require.NoError(t, os.WriteFile(logFile, []byte(
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"index_started","index":"docs"}
{"time":"2026-01-02T10:00:01Z","level":"ERROR","msg":"index_failed","index":"notes"}
`), 0o644))

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{"all", []string{"logs"}, []string{"INFO  index_started index=docs", "ERROR index_failed"}, nil},
		{"level", []string{"logs", "--level", "error"}, []string{"index_failed"}, []string{"index_started"}},
		{"filter", []string{"logs", "--filter", "docs"}, []string{"index_started"}, []string{"index_failed"}},
		{"lines", []string{"logs", "-n", "1"}, []string{"index_failed"}, []string{"index_started"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: viewing the log
			out, err := runCLI(t, tt.args...)

			// Then: only matching entries are printed
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

func TestLogsCmd_Errors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing file", []string{"logs", "--file", filepath.Join(env.home, "absent.log")}, errors.ErrCodeFileNotFound},
		{"bad filter", []string{"logs", "--filter", "("}, errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)

			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

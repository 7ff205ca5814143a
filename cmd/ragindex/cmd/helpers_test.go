package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/config"
)

// cliEnv is an isolated home with a static-embedder config.
type cliEnv struct {
	home    string
	storage string
	docs    string
	cfgPath string
}

func newCLIEnv(t *testing.T, mutate ...func(*config.Config)) *cliEnv {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("NO_COLOR", "1")

	cfg := config.NewConfig()
	cfg.StoragePath = filepath.Join(home, "indexes")
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 64
	cfg.FileTypes = []string{".md"}
	cfg.Chunking = config.ChunkingConfig{ChunkSize: 200, Overlap: 20}
	for _, fn := range mutate {
		fn(cfg)
	}

	cfgPath := filepath.Join(home, "ragindex.yaml")
	require.NoError(t, cfg.WriteYAML(cfgPath))
	t.Setenv("RAGINDEX_CONFIG", cfgPath)

	docs := filepath.Join(home, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))

	return &cliEnv{home: home, storage: cfg.StoragePath, docs: docs, cfgPath: cfgPath}
}

func (e *cliEnv) writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.docs, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// runCLI executes the root command with args and returns combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// indexDocs writes two documents and indexes them as "docs".
func (e *cliEnv) indexDocs(t *testing.T) {
	t.Helper()
	e.writeDoc(t, "widgets.md", "Widgets are configured in widgets.yaml. Each widget has a name and a color.")
	e.writeDoc(t, "gadgets.md", "Gadgets connect to the hub over a serial link and report battery levels.")
	_, err := runCLI(t, "index", e.docs, "--name", "docs", "--plain")
	require.NoError(t, err)
}

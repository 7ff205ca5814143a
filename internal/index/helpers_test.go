package index

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/embed"
	"github.com/Aman-CERP/ragindex/internal/errors"
)

const testDims = 64

// countingEmbedder wraps the static embedder and counts embedded texts.
type countingEmbedder struct {
	*embed.StaticEmbedder
	texts atomic.Int64
	fail  atomic.Bool
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(testDims)}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.fail.Load() {
		return nil, errors.New(errors.ErrCodeNetworkUnavailable, "provider down", nil)
	}
	c.texts.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.fail.Load() {
		return nil, errors.New(errors.ErrCodeNetworkUnavailable, "provider down", nil)
	}
	c.texts.Add(int64(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

type managerOption func(*ManagerConfig)

func withChunking(size, overlap int) managerOption {
	return func(c *ManagerConfig) { c.ChunkSize, c.Overlap = size, overlap }
}

func withName(name string) managerOption {
	return func(c *ManagerConfig) { c.Name = name }
}

func testConfig(storage string, opts ...managerOption) ManagerConfig {
	cfg := ManagerConfig{
		Name:        "test",
		StoragePath: storage,
		ChunkSize:   200,
		Overlap:     20,
		FileTypes:   []string{".md", ".txt"},
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// newTestManager opens a manager over a fresh storage directory.
func newTestManager(t *testing.T, emb embed.Embedder, opts ...managerOption) (*Manager, string) {
	t.Helper()

	storage := t.TempDir()
	m, err := NewManager(testConfig(storage, opts...), ManagerDeps{Embedder: emb})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, storage
}

// writeFiles creates files relative to dir and returns dir.
func writeFiles(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func mustAbs(t *testing.T, path string) string {
	t.Helper()
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}

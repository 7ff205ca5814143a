package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{
		"RAGINDEX_CONFIG", "RAGINDEX_STORAGE_PATH", "RAGINDEX_EMBEDDER",
		"RAGINDEX_EMBEDDINGS_MODEL", "RAGINDEX_OLLAMA_HOST", "RAGINDEX_SEMANTIC_WEIGHT",
		"RAGINDEX_KEYWORD_WEIGHT", "RAGINDEX_VECTOR_BACKEND", "RAGINDEX_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: the defaults match the documented values
	require.NotNil(t, cfg)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Embeddings.OllamaHost)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, []string{".txt", ".md", ".py", ".js", ".ts"}, cfg.FileTypes)
	assert.Equal(t, []string{"node_modules/**", ".git/**"}, cfg.ExcludePatterns)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Search.KeywordWeight)
	assert.Equal(t, 5, cfg.Search.TopK)
	assert.Equal(t, "flat", cfg.Search.VectorBackend)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	// Given: no user config and no explicit path
	isolateEnv(t)

	// When: loading
	cfg, err := Load("")

	// Then: defaults are returned without error
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_ExplicitMissingFileUsesDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	// Given: a config file setting a subset of keys
	isolateEnv(t)
	path := writeConfig(t, `
storage_path: /tmp/rag
embeddings:
  provider: static
  timeout: 5s
chunking:
  chunk_size: 256
  overlap: 32
indexes:
  - name: docs
    path: /srv/docs
    watch: true
watch:
  debounce: 500ms
`)

	// When: loading it
	cfg, err := Load(path)

	// Then: file values win and absent keys keep defaults
	require.NoError(t, err)
	assert.Equal(t, "/tmp/rag", cfg.StoragePath)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 5*time.Second, cfg.Embeddings.Timeout)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 256, cfg.Chunking.ChunkSize)
	assert.Equal(t, 32, cfg.Chunking.Overlap)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	require.Len(t, cfg.Indexes, 1)
	assert.Equal(t, IndexConfig{Name: "docs", Path: "/srv/docs", Watch: true}, cfg.Indexes[0])

	idx, ok := cfg.Index("docs")
	assert.True(t, ok)
	assert.Equal(t, "/srv/docs", idx.Path)
	assert.Equal(t, filepath.Join("/tmp/rag", "docs"), cfg.IndexDir("docs"))
}

func TestLoad_ConfigEnvSelectsFile(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, "chunking:\n  chunk_size: 128\n  overlap: 8\n")
	t.Setenv("RAGINDEX_CONFIG", path)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Chunking.ChunkSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	// Given: a file and environment overrides for the same keys
	isolateEnv(t)
	path := writeConfig(t, "embeddings:\n  provider: ollama\n")
	t.Setenv("RAGINDEX_EMBEDDER", "static")
	t.Setenv("RAGINDEX_SEMANTIC_WEIGHT", "0.5")
	t.Setenv("RAGINDEX_KEYWORD_WEIGHT", "0.5")
	t.Setenv("RAGINDEX_VECTOR_BACKEND", "hnsw")

	// When: loading
	cfg, err := Load(path)

	// Then: environment wins
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 0.5, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.5, cfg.Search.KeywordWeight)
	assert.Equal(t, "hnsw", cfg.Search.VectorBackend)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, "chunking: [oops\n")

	_, err := Load(path)

	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Chunking.ChunkSize = 0 }},
		{"overlap equals size", func(c *Config) { c.Chunking.Overlap = c.Chunking.ChunkSize }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"both weights zero", func(c *Config) { c.Search.SemanticWeight, c.Search.KeywordWeight = 0, 0 }},
		{"negative weight", func(c *Config) { c.Search.KeywordWeight = -0.1 }},
		{"bad backend", func(c *Config) { c.Search.VectorBackend = "faiss" }},
		{"bad index name", func(c *Config) { c.Indexes = []IndexConfig{{Name: "../x", Path: "/a"}} }},
		{"duplicate index", func(c *Config) {
			c.Indexes = []IndexConfig{{Name: "a", Path: "/a"}, {Name: "a", Path: "/b"}}
		}},
		{"empty index path", func(c *Config) { c.Indexes = []IndexConfig{{Name: "a"}} }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	isolateEnv(t)
	cfg := NewConfig()
	cfg.Indexes = []IndexConfig{{Name: "notes", Path: "/home/me/notes", Watch: true}}
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, cfg.WriteYAML(path))
	loaded, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".ragindex"), ExpandPath("~/.ragindex"))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
	assert.Equal(t, "~user/x", ExpandPath("~user/x"))
}

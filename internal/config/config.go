package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ragindex configuration.
type Config struct {
	// StoragePath is the root directory holding one subdirectory per index.
	StoragePath string `yaml:"storage_path" json:"storage_path"`

	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`

	// FileTypes is the extension allowlist, with leading dots.
	FileTypes []string `yaml:"file_types" json:"file_types"`

	// ExcludePatterns are glob patterns matched against paths relative to the
	// indexed directory. A trailing "/" matches that directory name anywhere.
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`

	// Indexes are indexed automatically when the server starts.
	Indexes []IndexConfig `yaml:"indexes" json:"indexes"`

	Search  SearchConfig  `yaml:"search" json:"search"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`
	History HistoryConfig `yaml:"history" json:"history"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static".
	Provider   string        `yaml:"provider" json:"provider"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Model      string        `yaml:"model" json:"model"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// CacheSize bounds the query embedding LRU cache. Zero disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// Dimensions is only used by the static provider.
	Dimensions int `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
}

// ChunkingConfig configures the text chunker.
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	Overlap   int `yaml:"overlap" json:"overlap"`
}

// IndexConfig names a directory to index.
type IndexConfig struct {
	Name  string `yaml:"name" json:"name"`
	Path  string `yaml:"path" json:"path"`
	Watch bool   `yaml:"watch" json:"watch"`
}

// SearchConfig configures hybrid query defaults.
type SearchConfig struct {
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight" json:"keyword_weight"`
	TopK           int     `yaml:"top_k" json:"top_k"`
	MinScore       float64 `yaml:"min_score" json:"min_score"`

	// VectorBackend is "flat" (exact) or "hnsw" (approximate).
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`
}

// WatchConfig configures directory watching.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// HistoryConfig configures query history recording.
type HistoryConfig struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	RetentionDays int  `yaml:"retention_days" json:"retention_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		StoragePath: "~/.ragindex/indexes",
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			OllamaHost: "http://localhost:11434",
			Model:      "nomic-embed-text",
			BatchSize:  32,
			Timeout:    60 * time.Second,
			CacheSize:  1000,
		},
		Chunking: ChunkingConfig{
			ChunkSize: 512,
			Overlap:   50,
		},
		FileTypes:       []string{".txt", ".md", ".py", ".js", ".ts"},
		ExcludePatterns: []string{"node_modules/**", ".git/**"},
		Search: SearchConfig{
			SemanticWeight: 0.7,
			KeywordWeight:  0.3,
			TopK:           5,
			MinScore:       0,
			VectorBackend:  "flat",
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// UserConfigPath returns the default configuration file location:
//   - $XDG_CONFIG_HOME/ragindex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ragindex/config.yaml
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragindex", "config.yaml")
}

// Load builds the configuration in order of increasing precedence:
//  1. Defaults
//  2. The YAML file at path, or $RAGINDEX_CONFIG, or UserConfigPath()
//  3. Environment variables (RAGINDEX_*)
//
// A missing file is not an error; defaults are used and a warning logged.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = os.Getenv("RAGINDEX_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = UserConfigPath()
	}

	if err := cfg.loadYAML(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if explicit {
			slog.Warn("config_not_found_using_defaults", slog.String("path", path))
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values, so keys absent from the
// file keep their defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies RAGINDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGINDEX_STORAGE_PATH"); v != "" {
		c.StoragePath = v
	}
	if v := os.Getenv("RAGINDEX_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("RAGINDEX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("RAGINDEX_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("RAGINDEX_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("RAGINDEX_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("RAGINDEX_VECTOR_BACKEND"); v != "" {
		c.Search.VectorBackend = v
	}
	if v := os.Getenv("RAGINDEX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidIndexName reports whether name can be used as an index directory name.
func ValidIndexName(name string) bool {
	return indexNamePattern.MatchString(name)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StoragePath) == "" {
		return fmt.Errorf("storage_path must not be empty")
	}

	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.overlap must be in [0, chunk_size), got %d", c.Chunking.Overlap)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if c.Search.SemanticWeight < 0 || c.Search.KeywordWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.SemanticWeight == 0 && c.Search.KeywordWeight == 0 {
		return fmt.Errorf("at least one of search.semantic_weight and search.keyword_weight must be positive")
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	switch c.Search.VectorBackend {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("search.vector_backend must be 'flat' or 'hnsw', got %q", c.Search.VectorBackend)
	}

	seen := make(map[string]bool, len(c.Indexes))
	for i, idx := range c.Indexes {
		if !ValidIndexName(idx.Name) {
			return fmt.Errorf("indexes[%d]: invalid name %q", i, idx.Name)
		}
		if seen[idx.Name] {
			return fmt.Errorf("indexes[%d]: duplicate name %q", i, idx.Name)
		}
		seen[idx.Name] = true
		if strings.TrimSpace(idx.Path) == "" {
			return fmt.Errorf("indexes[%d]: path must not be empty", i)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Log.Level)
	}

	return nil
}

// Index returns the configured index with the given name.
func (c *Config) Index(name string) (IndexConfig, bool) {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexConfig{}, false
}

// IndexDir returns the storage directory for the named index.
func (c *Config) IndexDir(name string) string {
	return filepath.Join(ExpandPath(c.StoragePath), name)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ExpandPath expands a leading "~" to the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

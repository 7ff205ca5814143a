package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/errors"
)

// NewEmbedder builds the configured embedder and verifies it answers. The
// result substitutes zero vectors for upstream failures and, when CacheSize
// is positive, caches embeddings in an LRU.
//
// An Ollama model that cannot be reached at startup is a fatal
// ERR_303_EMBEDDER_UNAVAILABLE error.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (*ResilientEmbedder, error) {
	var (
		base Embedder
		err  error
	)

	switch strings.ToLower(cfg.Provider) {
	case ProviderStatic:
		base = NewStaticEmbedder(cfg.Dimensions)

	case ProviderOllama, "":
		base, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:      cfg.OllamaHost,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}

	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown embedding provider %q", cfg.Provider), nil).
			WithSuggestion("Set embeddings.provider to 'ollama' or 'static'")
	}

	slog.Info("embedder_ready",
		slog.String("provider", cfg.Provider),
		slog.String("model", base.ModelName()),
		slog.Int("dimensions", base.Dimensions()))

	if cfg.CacheSize > 0 {
		base = NewCachedEmbedder(base, cfg.CacheSize)
	}
	r := NewResilientEmbedder(base)
	if err := r.Verify(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

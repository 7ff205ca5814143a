package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Aman-CERP/ragindex/internal/errors"
)

// ResilientEmbedder keeps indexing and querying alive while the embedding
// provider misbehaves: a text whose embedding fails with an upstream error
// gets a zero vector instead, and the substitution is logged. Cancellation
// and every other error are returned unchanged.
type ResilientEmbedder struct {
	inner       Embedder
	substituted atomic.Int64
}

var _ Embedder = (*ResilientEmbedder)(nil)

// NewResilientEmbedder wraps inner.
func NewResilientEmbedder(inner Embedder) *ResilientEmbedder {
	return &ResilientEmbedder{inner: inner}
}

// Embed embeds one text, substituting a zero vector on upstream failure.
func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := r.inner.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	if !r.substitutable(ctx, err) {
		return nil, err
	}
	r.substitute(err)
	return make([]float32, r.inner.Dimensions()), nil
}

// EmbedBatch embeds texts. When the whole batch fails it retries text by
// text so one bad input does not zero its neighbours.
func (r *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := r.inner.EmbedBatch(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	if !r.substitutable(ctx, err) {
		return nil, err
	}
	if len(texts) == 1 {
		r.substitute(err)
		return [][]float32{make([]float32, r.inner.Dimensions())}, nil
	}

	slog.Debug("embedding_batch_failed_retrying_individually",
		slog.Int("texts", len(texts)),
		slog.String("error", err.Error()))

	vecs = make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := r.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (r *ResilientEmbedder) substitutable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.GetCategory(err) == errors.CategoryUpstream
}

func (r *ResilientEmbedder) substitute(err error) {
	total := r.substituted.Add(1)
	slog.Warn("embedding_replaced_with_zero_vector",
		slog.String("model", r.inner.ModelName()),
		slog.String("code", errors.GetCode(err)),
		slog.String("error", err.Error()),
		slog.Int64("total_substituted", total))
}

// Verify embeds a probe text without substitution. A failure is returned as
// ERR_303_EMBEDDER_UNAVAILABLE and should stop startup.
func (r *ResilientEmbedder) Verify(ctx context.Context) error {
	if _, err := r.inner.Embed(ctx, "ragindex startup probe"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New(errors.ErrCodeEmbedderUnavailable,
			fmt.Sprintf("embedding model %q is not responding", r.inner.ModelName()), err)
	}
	return nil
}

// Substituted returns how many zero vectors have been handed out.
func (r *ResilientEmbedder) Substituted() int64 {
	return r.substituted.Load()
}

// Dimensions returns the embedding dimension.
func (r *ResilientEmbedder) Dimensions() int { return r.inner.Dimensions() }

// ModelName returns the model identifier.
func (r *ResilientEmbedder) ModelName() string { return r.inner.ModelName() }

// Available checks if the inner embedder is ready.
func (r *ResilientEmbedder) Available(ctx context.Context) bool { return r.inner.Available(ctx) }

// Close closes the inner embedder.
func (r *ResilientEmbedder) Close() error { return r.inner.Close() }

// Inner returns the wrapped embedder.
func (r *ResilientEmbedder) Inner() Embedder { return r.inner }

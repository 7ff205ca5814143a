package embed

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/ragindex/internal/errors"
)

// Ollama client defaults.
const (
	OllamaPoolSize       = 4
	OllamaProbeTimeout   = 2 * time.Minute
	ollamaBreakerFailure = 5
	ollamaBreakerReset   = 30 * time.Second
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host      string
	Model     string
	BatchSize int

	// Timeout bounds each HTTP request, not the whole batch.
	Timeout  time.Duration
	PoolSize int

	Retry errors.RetryConfig

	// Dimensions skips probing when set together with SkipProbe.
	Dimensions int
	SkipProbe  bool
}

// ollamaEmbedRequest is the body of POST /api/embed.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	breaker   *errors.CircuitBreaker
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder. Unless SkipProbe is set it
// embeds a probe text to learn the model's dimension; failure to reach the
// model returns ERR_303_EMBEDDER_UNAVAILABLE.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = errors.DefaultRetryConfig()
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = errors.IsRetryable
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level Timeout: each request gets its own context deadline.
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		breaker: errors.NewCircuitBreaker("ollama",
			errors.WithMaxFailures(ollamaBreakerFailure),
			errors.WithResetTimeout(ollamaBreakerReset)),
		dims: cfg.Dimensions,
	}

	if !cfg.SkipProbe {
		probeCtx, cancel := context.WithTimeout(ctx, OllamaProbeTimeout)
		defer cancel()

		vecs, err := e.doEmbed(probeCtx, []string{"dimension detection"})
		if err == nil && (len(vecs) == 0 || len(vecs[0]) == 0) {
			err = fmt.Errorf("empty embedding returned")
		}
		if err != nil {
			transport.CloseIdleConnections()
			return nil, errors.New(errors.ErrCodeEmbedderUnavailable,
				fmt.Sprintf("cannot reach embedding model %q at %s", cfg.Model, cfg.Host), err).
				WithSuggestion("Start Ollama and run: ollama pull " + cfg.Model)
		}
		e.dims = len(vecs[0])
	}

	if e.dims <= 0 {
		transport.CloseIdleConnections()
		return nil, errors.ConfigError("ollama embedder needs a dimension when probing is skipped", nil)
	}
	return e, nil
}

// Embed generates embedding for a single text
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most BatchSize inputs. Empty
// texts get zero vectors without a request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	results := make([][]float32, len(texts))
	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+e.config.BatchSize, len(pending))
		batch := make([]string, 0, end-start)
		for _, idx := range pending[start:end] {
			batch = append(batch, texts[idx])
		}

		embeddings, err := e.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, idx := range pending[start:end] {
			results[idx] = embeddings[j]
		}
	}

	return results, nil
}

func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := errors.CircuitExecute(e.breaker, func() ([][]float32, error) {
		return errors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
			return e.doEmbed(ctx, texts)
		})
	})
	if stderrors.Is(err, errors.ErrCircuitOpen) {
		return nil, errors.New(errors.ErrCodeEmbedderUnavailable, "embedding requests suspended after repeated failures", err)
	}
	if err != nil {
		return nil, err
	}
	for _, v := range vecs {
		if len(v) != e.dims {
			return nil, errors.New(errors.ErrCodeEmbedderBadResponse,
				fmt.Sprintf("model returned %d dimensions, expected %d", len(v), e.dims), nil)
		}
	}
	return vecs, nil
}

// doEmbed performs one request. Transport failures and 5xx/429 responses are
// returned as retryable 3xx errors; other failures are not retried.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if reqCtx.Err() != nil {
			return nil, errors.New(errors.ErrCodeNetworkTimeout,
				fmt.Sprintf("embedding request timed out after %s", e.config.Timeout), err)
		}
		return nil, errors.New(errors.ErrCodeNetworkUnavailable, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, errors.New(errors.ErrCodeNetworkUnavailable, msg, nil)
		}
		return nil, errors.New(errors.ErrCodeEmbedderBadResponse, msg, nil)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.New(errors.ErrCodeEmbedderBadResponse, "failed to decode response", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, errors.New(errors.ErrCodeEmbedderBadResponse,
			fmt.Sprintf("got %d embeddings for %d inputs", len(result.Embeddings), len(texts)), nil)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks if Ollama is running and lists the configured model.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	want := strings.ToLower(e.config.Model)
	wantBase, _, _ := strings.Cut(want, ":")
	for _, m := range tags.Models {
		name := strings.ToLower(m.Name)
		base, _, _ := strings.Cut(name, ":")
		if name == want || base == wantBase {
			return true
		}
	}
	return false
}

// Close releases resources
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

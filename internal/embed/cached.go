package embed

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize bounds the query cache. At 768 dimensions and
// 4 bytes per value, 1000 entries hold about 3MB.
const DefaultEmbeddingCacheSize = 1000

type cacheKey [sha256.Size]byte

// CacheStats counts cache lookups since creation.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// CachedEmbedder memoizes vectors per (model, text) pair in an LRU cache.
// Vectors handed out are shared with the cache and must not be modified.
type CachedEmbedder struct {
	inner  Embedder
	cache  *lru.Cache[cacheKey, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder wraps inner. A non-positive size uses
// DefaultEmbeddingCacheSize.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[cacheKey, []float32](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) key(text string) cacheKey {
	h := sha256.New()
	h.Write([]byte(c.inner.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	var k cacheKey
	copy(k[:], h.Sum(nil))
	return k
}

func (c *CachedEmbedder) lookup(k cacheKey) ([]float32, bool) {
	vec, ok := c.cache.Get(k)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return vec, ok
}

// Embed returns the cached vector for text or computes and stores it.
// Failures are never cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if vec, ok := c.lookup(k); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, vec)
	return vec, nil
}

// EmbedBatch sends only the distinct uncached texts to the inner embedder,
// in one call, and returns vectors in input order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	keys := make([]cacheKey, len(texts))
	pending := make(map[cacheKey][]int)
	var missing []string
	for i, text := range texts {
		keys[i] = c.key(text)
		if vec, ok := c.lookup(keys[i]); ok {
			out[i] = vec
			continue
		}
		if _, seen := pending[keys[i]]; !seen {
			missing = append(missing, text)
		}
		pending[keys[i]] = append(pending[keys[i]], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, text := range missing {
		k := c.key(text)
		c.cache.Add(k, vecs[j])
		for _, i := range pending[k] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

// Stats reports hit and miss counts and the current number of entries.
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.cache.Len()}
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }

func (c *CachedEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *CachedEmbedder) Close() error                       { return c.inner.Close() }

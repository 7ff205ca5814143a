package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_CacheHit_ReturnsWithoutCallingInner(t *testing.T) {
	// Given: a cached embedder
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()
	text := "how are retries configured"

	// When: the same text is embedded twice
	first, err := cached.Embed(ctx, text)
	require.NoError(t, err)
	second, err := cached.Embed(ctx, text)
	require.NoError(t, err)

	// Then: the inner embedder ran once and both results match
	assert.Equal(t, int64(1), inner.embedCalls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedEmbedder_CacheMiss_CallsInnerForNewText(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := cached.Embed(ctx, text)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(3), inner.embedCalls.Load())
}

func TestCachedEmbedder_KeyIncludesModel(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100)

	inner.modelName = "model-a"
	k1 := cached.key("text")
	inner.modelName = "model-b"
	k2 := cached.key("text")

	assert.NotEqual(t, k1, k2)
}

func TestCachedEmbedder_EmbedBatch_OnlyEmbedsMisses(t *testing.T) {
	// Given: one text already cached
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()
	_, err := cached.Embed(ctx, "alpha")
	require.NoError(t, err)

	// When: a batch containing it is embedded
	vecs, err := cached.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})

	// Then: results stay in input order and the batch skipped the hit
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, inner.vectorFor("alpha"), vecs[0])
	assert.Equal(t, inner.vectorFor("gamma"), vecs[2])
	assert.Equal(t, int64(1), inner.batchCalls.Load())
	assert.Equal(t, 3, cached.Len())

	// And: a fully cached batch never reaches the inner embedder
	_, err = cached.EmbedBatch(ctx, []string{"beta", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := newMockEmbedder(8)
	inner.failAll = assert.AnError
	cached := NewCachedEmbedder(inner, 100)

	_, err := cached.Embed(context.Background(), "text")

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, cached.Len())
}

func TestCachedEmbedder_CacheEviction_OldestEvictedFirst(t *testing.T) {
	// Given: a cache with room for three entries
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 3)
	ctx := context.Background()

	// When: four texts are embedded
	for _, text := range []string{"text1", "text2", "text3", "text4"} {
		_, _ = cached.Embed(ctx, text)
	}
	inner.embedCalls.Store(0)

	// Then: the oldest was evicted and the recent ones remain
	_, err := cached.Embed(ctx, "text1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.embedCalls.Load())

	inner.embedCalls.Store(0)
	_, _ = cached.Embed(ctx, "text4")
	assert.Equal(t, int64(0), inner.embedCalls.Load())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := newMockEmbedder(12)
	inner.modelName = "custom-model"
	cached := NewCachedEmbedder(inner, 0)

	assert.Equal(t, 12, cached.Dimensions())
	assert.Equal(t, "custom-model", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, inner, cached.Inner())
	assert.NoError(t, cached.Close())
}

func TestCachedEmbedder_ConcurrentAccess_NoRace(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()
	texts := []string{"a", "b", "c", "d", "e"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = cached.Embed(ctx, texts[j%len(texts)])
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, cached.Len(), len(texts))
}

func TestCachedEmbedder_EmbedBatch_DeduplicatesMisses(t *testing.T) {
	// Given: a batch repeating one uncached text
	inner := &recordingEmbedder{mockEmbedder: newMockEmbedder(8)}
	cached := NewCachedEmbedder(inner, 100)

	// When: it is embedded
	vecs, err := cached.EmbedBatch(context.Background(), []string{"same", "other", "same"})

	// Then: the inner embedder saw each text once and duplicates share a vector
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []string{"same", "other"}, inner.seen)
	assert.Equal(t, vecs[0], vecs[2])
}

func TestCachedEmbedder_Stats(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "a")
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "a")
	require.NoError(t, err)
	_, err = cached.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, CacheStats{Hits: 2, Misses: 2, Entries: 2}, cached.Stats())
}

// recordingEmbedder remembers the texts passed to EmbedBatch.
type recordingEmbedder struct {
	*mockEmbedder
	seen []string
}

func (r *recordingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	r.seen = append(r.seen, texts...)
	return r.mockEmbedder.EmbedBatch(ctx, texts)
}

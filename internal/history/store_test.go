package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestStore_SaveAndGetQuery(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Given: a recorded query with results
	id, err := s.SaveQuery(ctx, &Entry{
		Query:       "retry policy",
		Index:       "docs",
		TopK:        5,
		ResultCount: 1,
		Duration:    42 * time.Millisecond,
		Results:     []ResultSummary{{ChunkID: 7, FilePath: "/docs/a.md", Score: 0.9}},
	})
	require.NoError(t, err)

	// When: fetching it by id
	e, err := s.GetQuery(ctx, id)

	// Then: every field round-trips
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "retry policy", e.Query)
	assert.Equal(t, "docs", e.Index)
	assert.Equal(t, 5, e.TopK)
	assert.Equal(t, 42*time.Millisecond, e.Duration)
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Minute)
	assert.Equal(t, []ResultSummary{{ChunkID: 7, FilePath: "/docs/a.md", Score: 0.9}}, e.Results)
}

func TestStore_GetQuery_NotFound(t *testing.T) {
	s := setupTestStore(t)

	e, err := s.GetQuery(context.Background(), 999)

	assert.NoError(t, err)
	assert.Nil(t, e)
}

func TestStore_GetHistory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, q := range []struct{ query, index string }{
		{"first", "docs"}, {"second", "code"}, {"third", "docs"},
	} {
		_, err := s.SaveQuery(ctx, &Entry{Query: q.query, Index: q.index, TopK: 5})
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		limit  int
		index  string
		expect []string
	}{
		{"newest first", 10, "", []string{"third", "second", "first"}},
		{"limited", 2, "", []string{"third", "second"}},
		{"filtered by index", 10, "docs", []string{"third", "first"}},
		{"unknown index", 10, "none", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.GetHistory(ctx, tt.limit, tt.index, false)
			require.NoError(t, err)

			var got []string
			for _, e := range entries {
				got = append(got, e.Query)
				assert.Nil(t, e.Results)
			}
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestStore_SearchHistory_CaseInsensitive(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, err := s.SaveQuery(ctx, &Entry{Query: "How does Retry work", Index: "docs"})
	require.NoError(t, err)
	_, err = s.SaveQuery(ctx, &Entry{Query: "logging setup", Index: "docs"})
	require.NoError(t, err)

	entries, err := s.SearchHistory(ctx, "retry", 10)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "How does Retry work", entries[0].Query)
}

func TestStore_Stats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, err := s.SaveQuery(ctx, &Entry{Query: "a", Index: "docs", ResultCount: 3, Duration: 5 * time.Millisecond})
	require.NoError(t, err)
	_, err = s.SaveQuery(ctx, &Entry{Query: "b", Index: "docs", ResultCount: 0, Duration: 15 * time.Millisecond})
	require.NoError(t, err)
	_, err = s.SaveQuery(ctx, &Entry{Query: "c", Index: "code", ResultCount: 1, Duration: 700 * time.Millisecond})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)

	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"docs": 2, "code": 1}, stats.PerIndex)
	assert.Equal(t, 1, stats.ZeroResults)
	assert.Equal(t, 240*time.Millisecond, stats.AverageDuration)
	assert.Equal(t, map[LatencyBucket]int{BucketP10: 1, BucketP50: 1, BucketP1000: 1}, stats.Latency)
	assert.False(t, stats.First.After(stats.Last))
}

func TestStore_Clear(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	_, err := s.SaveQuery(ctx, &Entry{Query: "old", Timestamp: now.Add(-40 * 24 * time.Hour)})
	require.NoError(t, err)
	_, err = s.SaveQuery(ctx, &Entry{Query: "recent", Timestamp: now.Add(-time.Hour)})
	require.NoError(t, err)

	// When: clearing entries older than 30 days
	n, err := s.Clear(ctx, 30)

	// Then: only the old entry is removed
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	entries, err := s.GetHistory(ctx, 10, "", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "recent", entries[0].Query)

	// And: zero clears everything
	n, err = s.Clear(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Clear(ctx, -1)
	assert.Error(t, err)
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d      time.Duration
		bucket LatencyBucket
	}{
		{0, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.bucket, LatencyToBucket(tt.d), tt.d.String())
	}
}

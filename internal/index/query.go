package index

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/store"
)

// Validate reports ERR_403_INVALID_QUERY when the options cannot produce a
// ranking.
func (o QueryOptions) Validate() error {
	switch {
	case strings.TrimSpace(o.Text) == "":
		return errors.New(errors.ErrCodeInvalidQuery, "query text is empty", nil)
	case o.TopK <= 0:
		return errors.New(errors.ErrCodeInvalidQuery, "top_k must be positive", nil).
			WithDetail("top_k", strconv.Itoa(o.TopK))
	case o.SemanticWeight < 0 || o.KeywordWeight < 0:
		return errors.New(errors.ErrCodeInvalidQuery, "weights must not be negative", nil)
	case o.SemanticWeight == 0 && o.KeywordWeight == 0:
		return errors.New(errors.ErrCodeInvalidQuery, "at least one weight must be positive", nil)
	}
	return nil
}

// Query runs a hybrid search. The semantic and keyword legs run concurrently,
// each fetching twice TopK candidates; scores are the weighted sum of both
// legs. Chunks deleted since the legs ran are skipped, so fewer than TopK
// results may come back.
func (m *Manager) Query(ctx context.Context, opts QueryOptions) ([]*SearchResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if m.vectors.Count() == 0 && !m.hasChunks(ctx) {
		return []*SearchResult{}, nil
	}

	limit := opts.TopK * candidateFactor

	var (
		semantic []*store.VectorResult
		keyword  []*store.KeywordResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.SemanticWeight > 0 {
		g.Go(func() error {
			vec, err := m.embedder.Embed(gctx, opts.Text)
			if err != nil {
				return err
			}
			if isZeroVector(vec) {
				slog.Debug("query_semantic_leg_skipped", slog.String("index", m.cfg.Name))
				return nil
			}
			semantic, err = m.vectors.Search(gctx, vec, limit)
			return err
		})
	}
	if opts.IncludeKeywords && opts.KeywordWeight > 0 {
		g.Go(func() error {
			var err error
			keyword, err = m.metadata.SearchText(gctx, opts.Text, limit)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, queryError(ctx, err)
	}

	ranked := fuse(semantic, keyword, opts)

	results := make([]*SearchResult, 0, len(ranked))
	for _, r := range ranked {
		c, err := m.metadata.GetChunk(ctx, r.ChunkID)
		if err != nil {
			return nil, queryError(ctx, err)
		}
		if c == nil {
			continue
		}
		r.Text = c.Text
		r.FilePath = c.FilePath
		r.StartChar = c.StartChar
		r.EndChar = c.EndChar
		r.Index = m.cfg.Name
		results = append(results, r)
	}
	return results, nil
}

// fuse adds the weighted leg scores per chunk, orders by score descending
// with ties to the lower chunk id, drops scores below MinScore and keeps the
// first TopK.
func fuse(semantic []*store.VectorResult, keyword []*store.KeywordResult, opts QueryOptions) []*SearchResult {
	byID := make(map[int64]*SearchResult, len(semantic)+len(keyword))
	get := func(id int64) *SearchResult {
		r, ok := byID[id]
		if !ok {
			r = &SearchResult{ChunkID: id}
			byID[id] = r
		}
		return r
	}

	for _, v := range semantic {
		get(v.ID).SemanticScore += opts.SemanticWeight * float64(v.Score)
	}
	for _, k := range keyword {
		r := get(k.ChunkID)
		r.KeywordScore += opts.KeywordWeight * k.Score
		r.MatchedTerms = k.MatchedTerms
	}

	ranked := make([]*SearchResult, 0, len(byID))
	for _, r := range byID {
		r.Score = r.SemanticScore + r.KeywordScore
		if r.Score < opts.MinScore {
			continue
		}
		ranked = append(ranked, r)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})
	if len(ranked) > opts.TopK {
		ranked = ranked[:opts.TopK]
	}
	return ranked
}

func (m *Manager) hasChunks(ctx context.Context) bool {
	stats, err := m.metadata.Stats(ctx)
	return err != nil || stats.ChunkCount > 0
}

func queryError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var dm store.ErrDimensionMismatch
	if stderrors.As(err, &dm) {
		return errors.New(errors.ErrCodeDimensionMismatch, err.Error(), err).
			WithSuggestion("The embedding model changed; rebuild the index")
	}
	return errors.New(errors.ErrCodeInternal, "query failed", err)
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

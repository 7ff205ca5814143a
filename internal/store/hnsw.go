package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore is an approximate vector store backed by coder/hnsw. Graph keys
// are row numbers. Deletes only tombstone rows: removing nodes from a
// coder/hnsw graph can break it when the last node goes.
//
// Zero vectors are recorded as rows but kept out of the graph, since their
// cosine distance is undefined; they never appear in search results.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig
	rows   rowTable

	// zeroRows counts rows that were never added to the graph.
	zeroRows int
	closed   bool
}

var _ VectorStore = (*HNSWStore)(nil)

// NewHNSWStore creates an empty HNSW-backed store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &HNSWStore{
		graph:  newGraph(cfg),
		config: cfg,
		rows:   newRowTable(),
	}, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

func (s *HNSWStore) Add(_ context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		row := s.rows.append(id)
		if isZero(vectors[i]) {
			s.zeroRows++
			continue
		}
		s.graph.Add(hnsw.MakeNode(uint64(row), normalized(vectors[i])))
	}
	return nil
}

// Search over-fetches from the graph by the number of dead rows, drops them,
// and re-scores survivors by exact inner product.
func (s *HNSWStore) Search(_ context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if k <= 0 || s.rows.live() == 0 || s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}
	if isZero(query) {
		// Every score would be zero; insertion order decides.
		results := make([]*VectorResult, 0, k)
		for row := 0; row < s.rows.len() && len(results) < k; row++ {
			if s.rows.alive(row) {
				results = append(results, &VectorResult{ID: s.rows.ids[row], Row: row})
			}
		}
		return results, nil
	}

	q := normalized(query)
	nodes := s.graph.Search(q, k+s.rows.tombstoned)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		row := int(node.Key)
		if !s.rows.alive(row) {
			continue
		}
		results = append(results, &VectorResult{
			ID:    s.rows.ids[row],
			Row:   row,
			Score: dot(q, node.Value),
		})
	}
	return rankRows(results, k), nil
}

func (s *HNSWStore) Delete(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for _, id := range ids {
		s.rows.tombstone(id)
	}
	return nil
}

func (s *HNSWStore) NextRow() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows.len()
}

func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows.live()
}

func (s *HNSWStore) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows.contains(id)
}

func (s *HNSWStore) AllIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows.liveIDs()
}

func (s *HNSWStore) Dimension() int { return s.config.Dimensions }

func (s *HNSWStore) Stats() VectorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return VectorStats{
		TotalVectors: s.rows.len(),
		LiveVectors:  s.rows.live(),
		Tombstoned:   s.rows.tombstoned,
		Dimension:    s.config.Dimensions,
	}
}

func (s *HNSWStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = newGraph(s.config)
	s.rows.reset()
	s.zeroRows = 0
}

// Save writes basePath.hnsw (the exported graph) and basePath.map.
func (s *HNSWStore) Save(basePath string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	err := writeAtomic(basePath+".hnsw", func(f *os.File) error {
		w := bufio.NewWriter(f)
		if err := s.graph.Export(w); err != nil {
			return fmt.Errorf("failed to export graph: %w", err)
		}
		return w.Flush()
	})
	if err != nil {
		return err
	}

	if err := saveRowMap(basePath+".map", s.rows.snapshot(s.config.Dimensions)); err != nil {
		return fmt.Errorf("failed to save row map: %w", err)
	}
	return nil
}

// Load replaces the store's contents with the files at basePath.
func (s *HNSWStore) Load(basePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	m, err := loadRowMap(basePath + ".map")
	if err != nil {
		return err
	}
	if m.Dimension != s.config.Dimensions {
		return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: m.Dimension}
	}
	rows, err := restoreRowTable(m)
	if err != nil {
		return err
	}

	file, err := os.Open(basePath + ".hnsw")
	if err != nil {
		return err
	}
	defer file.Close()

	graph := newGraph(s.config)
	// Import needs an io.ByteReader.
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("%w: import graph: %v", ErrCorruptVectors, err)
	}
	if graph.Len() > rows.len() {
		return fmt.Errorf("%w: graph has %d nodes for %d rows", ErrCorruptVectors, graph.Len(), rows.len())
	}

	s.graph = graph
	s.rows = rows
	s.zeroRows = rows.len() - graph.Len()
	return nil
}

func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graph = nil
	return nil
}

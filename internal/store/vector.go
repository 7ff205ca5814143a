package store

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
)

const (
	vectorMagic         = "RGVX"
	vectorFormatVersion = 1
	vectorHeaderSize    = 4 + 4 + 4 + 8
)

// VectorStoreConfig configures a vector store backend.
type VectorStoreConfig struct {
	Dimensions int

	// HNSW parameters. Zero means the library default.
	M        int
	EfSearch int
}

// FlatStore is an exact vector store: a row-major float32 matrix scanned in
// full on every search.
type FlatStore struct {
	mu     sync.RWMutex
	dim    int
	data   []float32
	rows   rowTable
	closed bool
}

var _ VectorStore = (*FlatStore)(nil)

// NewFlatStore creates an empty exact store.
func NewFlatStore(cfg VectorStoreConfig) (*FlatStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &FlatStore{dim: cfg.Dimensions, rows: newRowTable()}, nil
}

// Add appends vectors after normalizing them. Either every vector is
// appended or none is.
func (s *FlatStore) Add(_ context.Context, ids []int64, vectors [][]float32) error {
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
		if len(v) != s.dim {
			return ErrDimensionMismatch{Expected: s.dim, Got: len(v)}
		}
	}

	for i, id := range ids {
		s.data = append(s.data, normalized(vectors[i])...)
		s.rows.append(id)
	}
	return nil
}

// Search scores every live row against the normalized query.
func (s *FlatStore) Search(_ context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if len(query) != s.dim {
		return nil, ErrDimensionMismatch{Expected: s.dim, Got: len(query)}
	}
	if k <= 0 || s.rows.live() == 0 {
		return []*VectorResult{}, nil
	}

	q := normalized(query)
	results := make([]*VectorResult, 0, s.rows.live())
	for row := 0; row < s.rows.len(); row++ {
		if !s.rows.alive(row) {
			continue
		}
		results = append(results, &VectorResult{
			ID:    s.rows.ids[row],
			Row:   row,
			Score: dot(q, s.data[row*s.dim:(row+1)*s.dim]),
		})
	}
	return rankRows(results, k), nil
}

// Delete tombstones the rows of ids.
func (s *FlatStore) Delete(_ context.Context, ids []int64) error {
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

func (s *FlatStore) NextRow() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows.len()
}

func (s *FlatStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows.live()
}

func (s *FlatStore) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows.contains(id)
}

func (s *FlatStore) AllIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows.liveIDs()
}

func (s *FlatStore) Dimension() int { return s.dim }

func (s *FlatStore) Stats() VectorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return VectorStats{
		TotalVectors: s.rows.len(),
		LiveVectors:  s.rows.live(),
		Tombstoned:   s.rows.tombstoned,
		Dimension:    s.dim,
	}
}

func (s *FlatStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	s.rows.reset()
}

// Save writes basePath.bin (the matrix) and basePath.map (row ids and
// tombstones), each atomically.
func (s *FlatStore) Save(basePath string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	err := writeAtomic(basePath+".bin", func(f *os.File) error {
		w := bufio.NewWriter(f)
		header := make([]byte, vectorHeaderSize)
		copy(header, vectorMagic)
		binary.LittleEndian.PutUint32(header[4:], vectorFormatVersion)
		binary.LittleEndian.PutUint32(header[8:], uint32(s.dim))
		binary.LittleEndian.PutUint64(header[12:], uint64(s.rows.len()))
		if _, err := w.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, s.data); err != nil {
			return fmt.Errorf("write vectors: %w", err)
		}
		return w.Flush()
	})
	if err != nil {
		return fmt.Errorf("failed to save vectors: %w", err)
	}

	if err := saveRowMap(basePath+".map", s.rows.snapshot(s.dim)); err != nil {
		return fmt.Errorf("failed to save row map: %w", err)
	}
	return nil
}

// Load replaces the store's contents with the files at basePath. On error the
// store is left unchanged.
func (s *FlatStore) Load(basePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	m, err := loadRowMap(basePath + ".map")
	if err != nil {
		return err
	}
	if m.Dimension != s.dim {
		return ErrDimensionMismatch{Expected: s.dim, Got: m.Dimension}
	}

	data, err := readMatrix(basePath+".bin", s.dim, len(m.IDs))
	if err != nil {
		return err
	}
	rows, err := restoreRowTable(m)
	if err != nil {
		return err
	}

	s.data = data
	s.rows = rows
	return nil
}

func readMatrix(path string, dim, wantRows int) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat vectors: %w", err)
	}

	header := make([]byte, vectorHeaderSize)
	if _, err := io.ReadFull(file, header); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrCorruptVectors)
	}
	if string(header[:4]) != vectorMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptVectors)
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != vectorFormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptVectors, v)
	}
	if d := int(binary.LittleEndian.Uint32(header[8:])); d != dim {
		return nil, ErrDimensionMismatch{Expected: dim, Got: d}
	}
	rows := binary.LittleEndian.Uint64(header[12:])
	if rows != uint64(wantRows) {
		return nil, fmt.Errorf("%w: %d rows on disk, %d in row map", ErrCorruptVectors, rows, wantRows)
	}
	if want := int64(vectorHeaderSize) + int64(rows)*int64(dim)*4; info.Size() != want {
		return nil, fmt.Errorf("%w: size %d, expected %d", ErrCorruptVectors, info.Size(), want)
	}

	data := make([]float32, int(rows)*dim)
	if err := binary.Read(bufio.NewReader(file), binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%w: read vectors: %v", ErrCorruptVectors, err)
	}
	return data, nil
}

func (s *FlatStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}

func sortResults(results []*VectorResult) {
	slices.SortFunc(results, func(a, b *VectorResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Row - b.Row
		}
	})
}

// isMissing reports whether a Load error means nothing was persisted yet.
func isMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

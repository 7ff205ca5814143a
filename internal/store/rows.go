package store

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
)

const mapFormatVersion = 1

// ErrCorruptVectors is returned by Load when persisted vectors cannot be
// trusted.
var ErrCorruptVectors = errors.New("corrupt vector store")

// rowTable maps append-only rows to chunk ids and tracks tombstones.
// It is shared by every backend; callers hold the backend's lock.
type rowTable struct {
	ids        []int64
	dead       []bool
	byID       map[int64][]int
	tombstoned int
}

func newRowTable() rowTable {
	return rowTable{byID: make(map[int64][]int)}
}

func (t *rowTable) len() int { return len(t.ids) }

func (t *rowTable) live() int { return len(t.ids) - t.tombstoned }

func (t *rowTable) append(id int64) int {
	row := len(t.ids)
	t.ids = append(t.ids, id)
	t.dead = append(t.dead, false)
	t.byID[id] = append(t.byID[id], row)
	return row
}

func (t *rowTable) alive(row int) bool {
	return row >= 0 && row < len(t.ids) && !t.dead[row]
}

// tombstone marks every live row of id dead and forgets the id.
func (t *rowTable) tombstone(id int64) {
	rows, ok := t.byID[id]
	if !ok {
		return
	}
	for _, row := range rows {
		if !t.dead[row] {
			t.dead[row] = true
			t.tombstoned++
		}
	}
	delete(t.byID, id)
}

func (t *rowTable) contains(id int64) bool {
	_, ok := t.byID[id]
	return ok
}

// liveIDs returns the ids that still have a live row, ascending.
func (t *rowTable) liveIDs() []int64 {
	ids := make([]int64, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (t *rowTable) reset() {
	*t = newRowTable()
}

// rowMap is the gob-encoded companion file of every backend.
type rowMap struct {
	Version    int
	Dimension  int
	IDs        []int64
	Tombstones []int
}

func (t *rowTable) snapshot(dim int) rowMap {
	m := rowMap{
		Version:   mapFormatVersion,
		Dimension: dim,
		IDs:       t.ids,
	}
	for row, dead := range t.dead {
		if dead {
			m.Tombstones = append(m.Tombstones, row)
		}
	}
	return m
}

func restoreRowTable(m rowMap) (rowTable, error) {
	t := newRowTable()
	for _, id := range m.IDs {
		t.append(id)
	}
	for _, row := range m.Tombstones {
		if row < 0 || row >= len(t.ids) {
			return rowTable{}, fmt.Errorf("%w: tombstone row %d out of range", ErrCorruptVectors, row)
		}
		if !t.dead[row] {
			t.dead[row] = true
			t.tombstoned++
		}
	}
	// Rebuild the id index from live rows only.
	t.byID = make(map[int64][]int, len(t.ids))
	for row, id := range t.ids {
		if !t.dead[row] {
			t.byID[id] = append(t.byID[id], row)
		}
	}
	return t, nil
}

func saveRowMap(path string, m rowMap) error {
	return writeAtomic(path, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(m)
	})
}

func loadRowMap(path string) (rowMap, error) {
	var m rowMap
	file, err := os.Open(path)
	if err != nil {
		return m, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close row map", slog.String("error", err.Error()))
		}
	}()

	if err := gob.NewDecoder(file).Decode(&m); err != nil {
		return m, fmt.Errorf("%w: decode row map: %v", ErrCorruptVectors, err)
	}
	if m.Version != mapFormatVersion {
		return m, fmt.Errorf("%w: unsupported row map version %d", ErrCorruptVectors, m.Version)
	}
	return m, nil
}

// writeAtomic writes through a temp file and renames it over path.
func writeAtomic(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if err := write(file); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return err
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// normalizeVectorInPlace scales v to unit length. Zero vectors are left as is.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	normalizeVectorInPlace(out)
	return out
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// rankRows orders results by descending score, lower row first on ties, and
// keeps at most k.
func rankRows(results []*VectorResult, k int) []*VectorResult {
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

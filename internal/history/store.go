// Package history records executed queries in a local SQLite database.
// Nothing is reported externally.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Aman-CERP/ragindex/internal/store"
)

// ResultSummary is the part of a search result worth keeping.
type ResultSummary struct {
	ChunkID  int64   `json:"chunk_id"`
	FilePath string  `json:"file_path"`
	Score    float64 `json:"score"`
	Index    string  `json:"index,omitempty"`
}

// Entry is one recorded query.
type Entry struct {
	ID          int64           `json:"id"`
	Query       string          `json:"query"`
	Index       string          `json:"index"`
	TopK        int             `json:"top_k"`
	ResultCount int             `json:"result_count"`
	Duration    time.Duration   `json:"duration"`
	Timestamp   time.Time       `json:"timestamp"`
	Results     []ResultSummary `json:"results,omitempty"`
}

// LatencyBucket is a coarse query latency class.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// Stats summarizes recorded queries.
type Stats struct {
	Total           int                   `json:"total"`
	PerIndex        map[string]int        `json:"per_index"`
	AverageDuration time.Duration         `json:"average_duration"`
	ZeroResults     int                   `json:"zero_results"`
	Latency         map[LatencyBucket]int `json:"latency"`
	First           time.Time             `json:"first,omitempty"`
	Last            time.Time             `json:"last,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS queries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	query        TEXT NOT NULL,
	index_name   TEXT NOT NULL,
	top_k        INTEGER NOT NULL,
	result_count INTEGER NOT NULL,
	duration_ns  INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	results      TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_queries_created_at ON queries(created_at);
CREATE INDEX IF NOT EXISTS idx_queries_index ON queries(index_name);
`

// Store persists query history.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path. An empty path keeps
// history in memory.
func Open(path string) (*Store, error) {
	db, err := store.OpenSQLite(path, "queries")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// SaveQuery records e and returns its id. A zero Timestamp means now.
func (s *Store) SaveQuery(ctx context.Context, e *Entry) (int64, error) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	results := e.Results
	if results == nil {
		results = []ResultSummary{}
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return 0, fmt.Errorf("encode results: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queries (query, index_name, top_k, result_count, duration_ns, created_at, results)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Query, e.Index, e.TopK, e.ResultCount, int64(e.Duration), ts.UnixNano(), string(encoded))
	if err != nil {
		return 0, fmt.Errorf("insert query: %w", err)
	}
	return res.LastInsertId()
}

// GetHistory returns the most recent entries, newest first. An empty index
// matches every index.
func (s *Store) GetHistory(ctx context.Context, limit int, index string, includeResults bool) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, query, index_name, top_k, result_count, duration_ns, created_at, results FROM queries`
	args := []any{}
	if index != "" {
		query += ` WHERE index_name = ?`
		args = append(args, index)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	return s.list(ctx, includeResults, query, args...)
}

// GetQuery returns one entry with its results, or nil when it does not exist.
func (s *Store) GetQuery(ctx context.Context, id int64) (*Entry, error) {
	entries, err := s.list(ctx, true,
		`SELECT id, query, index_name, top_k, result_count, duration_ns, created_at, results FROM queries WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// SearchHistory returns entries whose query text contains term, newest first.
func (s *Store) SearchHistory(ctx context.Context, term string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.list(ctx, false, `
		SELECT id, query, index_name, top_k, result_count, duration_ns, created_at, results
		FROM queries WHERE instr(lower(query), lower(?)) > 0
		ORDER BY id DESC LIMIT ?`, term, limit)
}

func (s *Store) list(ctx context.Context, includeResults bool, query string, args ...any) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e        Entry
			duration int64
			created  int64
			results  string
		)
		if err := rows.Scan(&e.ID, &e.Query, &e.Index, &e.TopK, &e.ResultCount, &duration, &created, &results); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Duration = time.Duration(duration)
		e.Timestamp = time.Unix(0, created)
		if includeResults {
			if err := json.Unmarshal([]byte(results), &e.Results); err != nil {
				return nil, fmt.Errorf("decode results of query %d: %w", e.ID, err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Stats aggregates every recorded query.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT index_name, result_count, duration_ns, created_at FROM queries`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{
		PerIndex: make(map[string]int),
		Latency:  make(map[LatencyBucket]int),
	}
	var total time.Duration
	for rows.Next() {
		var (
			index    string
			count    int
			duration int64
			created  int64
		)
		if err := rows.Scan(&index, &count, &duration, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		stats.Total++
		stats.PerIndex[index]++
		if count == 0 {
			stats.ZeroResults++
		}
		d := time.Duration(duration)
		total += d
		stats.Latency[LatencyToBucket(d)]++

		ts := time.Unix(0, created)
		if stats.First.IsZero() || ts.Before(stats.First) {
			stats.First = ts
		}
		if ts.After(stats.Last) {
			stats.Last = ts
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.AverageDuration = total / time.Duration(stats.Total)
	}
	return stats, nil
}

// Clear deletes entries older than olderThanDays days; 0 deletes everything.
// It returns the number of entries removed.
func (s *Store) Clear(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, errors.New("olderThanDays must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res sql.Result
		err error
	)
	if olderThanDays == 0 {
		res, err = s.db.ExecContext(ctx, `DELETE FROM queries`)
	} else {
		cutoff := s.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
		res, err = s.db.ExecContext(ctx, `DELETE FROM queries WHERE created_at < ?`, cutoff.UnixNano())
	}
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

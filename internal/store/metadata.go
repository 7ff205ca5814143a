package store

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const metadataSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS files (
	id         INTEGER PRIMARY KEY,
	path       TEXT NOT NULL UNIQUE,
	file_type  TEXT NOT NULL,
	hash       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	modified   REAL NOT NULL,
	indexed_at TEXT NOT NULL
);

-- AUTOINCREMENT keeps ids of deleted chunks from being reused, so a stale
-- vector row can never be attributed to a newer chunk.
CREATE TABLE IF NOT EXISTS chunks (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id       INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	text          TEXT NOT NULL,
	terms         TEXT NOT NULL,
	start_char    INTEGER NOT NULL,
	end_char      INTEGER NOT NULL,
	embedding_row INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id);
CREATE INDEX IF NOT EXISTS idx_files_hash ON files(hash);

-- External content table: terms live in chunks, FTS5 holds only the index.
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	terms,
	content='chunks',
	content_rowid='id',
	tokenize='unicode61'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
	INSERT INTO chunks_fts(rowid, terms) VALUES (new.id, new.terms);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, terms) VALUES ('delete', old.id, old.terms);
END;

CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, terms) VALUES ('delete', old.id, old.terms);
	INSERT INTO chunks_fts(rowid, terms) VALUES (new.id, new.terms);
END;

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// SQLiteStore implements MetadataStore on SQLite with an FTS5 keyword index.
type SQLiteStore struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	closed    bool
	stopWords map[string]struct{}
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens the metadata database at path. If path is empty, an
// in-memory database is used.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenSQLite(path, "chunks")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(metadataSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{
		db:        db,
		path:      path,
		stopWords: BuildStopWordMap(DefaultStopWords),
	}, nil
}

// ContentHash is the change-detection hash of a document body.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// AddFile registers a file. A changed file has its old chunks purged.
func (s *SQLiteStore) AddFile(ctx context.Context, in FileInput) (int64, FileOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, 0, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, outcome, _, err := upsertFile(ctx, tx, in)
	if err != nil {
		return 0, 0, err
	}
	if outcome == OutcomeUnchanged {
		return id, outcome, nil
	}
	return id, outcome, tx.Commit()
}

// AddChunk inserts a single chunk and returns its id.
func (s *SQLiteStore) AddChunk(ctx context.Context, fileID int64, text string, startChar, endChar int, embeddingRow int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks(file_id, text, terms, start_char, end_char, embedding_row) VALUES (?, ?, ?, ?, ?, ?)`,
		fileID, text, IndexTerms(text, s.stopWords), startChar, endChar, embeddingRow)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunk: %w", err)
	}
	return res.LastInsertId()
}

// SaveDocument registers the file and replaces its chunks in one transaction.
func (s *SQLiteStore) SaveDocument(ctx context.Context, in FileInput, chunks []ChunkInput) (*SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	fileID, outcome, purged, err := upsertFile(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	result := &SaveResult{FileID: fileID, Outcome: outcome, PurgedChunkIDs: purged}
	if outcome == OutcomeUnchanged {
		return result, nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks(file_id, text, terms, start_char, end_char, embedding_row) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer stmt.Close()

	result.ChunkIDs = make([]int64, 0, len(chunks))
	for i, c := range chunks {
		res, err := stmt.ExecContext(ctx, fileID, c.Text, IndexTerms(c.Text, s.stopWords), c.StartChar, c.EndChar, c.EmbeddingRow)
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d of %s: %w", i, in.Path, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk id: %w", err)
		}
		result.ChunkIDs = append(result.ChunkIDs, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit document %s: %w", in.Path, err)
	}
	return result, nil
}

// upsertFile inserts or updates the file row inside tx. For a changed file the
// ids of its purged chunks are returned.
func upsertFile(ctx context.Context, tx *sql.Tx, in FileInput) (int64, FileOutcome, []int64, error) {
	hash := ContentHash(in.Content)
	now := time.Now().UTC().Format(timeLayout)
	modified := toUnixSeconds(in.Modified)

	var id int64
	var oldHash string
	err := tx.QueryRowContext(ctx, `SELECT id, hash FROM files WHERE path = ?`, in.Path).Scan(&id, &oldHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO files(path, file_type, hash, size, modified, indexed_at) VALUES (?, ?, ?, ?, ?, ?)`,
			in.Path, in.FileType, hash, in.Size, modified, now)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("failed to insert file %s: %w", in.Path, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, 0, nil, fmt.Errorf("failed to read file id: %w", err)
		}
		return id, OutcomeNew, nil, nil
	case err != nil:
		return 0, 0, nil, fmt.Errorf("failed to look up file %s: %w", in.Path, err)
	}

	if oldHash == hash {
		return id, OutcomeUnchanged, nil, nil
	}

	purged, err := chunkIDsTx(ctx, tx, id)
	if err != nil {
		return 0, 0, nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, id); err != nil {
		return 0, 0, nil, fmt.Errorf("failed to purge chunks of %s: %w", in.Path, err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE files SET file_type = ?, hash = ?, size = ?, modified = ?, indexed_at = ? WHERE id = ?`,
		in.FileType, hash, in.Size, modified, now, id)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to update file %s: %w", in.Path, err)
	}
	return id, OutcomeChanged, purged, nil
}

func chunkIDsTx(ctx context.Context, tx *sql.Tx, fileID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE file_id = ? ORDER BY id`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetChunk returns the chunk with its file path, or nil if it does not exist.
func (s *SQLiteStore) GetChunk(ctx context.Context, id int64) (*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var c ChunkRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.file_id, f.path, c.text, c.start_char, c.end_char, c.embedding_row
		FROM chunks c JOIN files f ON f.id = c.file_id
		WHERE c.id = ?`, id).
		Scan(&c.ID, &c.FileID, &c.FilePath, &c.Text, &c.StartChar, &c.EndChar, &c.EmbeddingRow)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %d: %w", id, err)
	}
	return &c, nil
}

// ChunkIDsByFile returns the chunk ids of path in insertion order.
func (s *SQLiteStore) ChunkIDsByFile(ctx context.Context, path string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM chunks c JOIN files f ON f.id = c.file_id
		WHERE f.path = ? ORDER BY c.id`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// SearchText ranks chunks by BM25 against any of the query's terms. Scores
// are divided by the best score in the result set, so they fall in (0, 1].
// Queries with no usable terms return no results.
func (s *SQLiteStore) SearchText(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return []*KeywordResult{}, nil
	}

	terms := QueryTerms(query, s.stopWords)
	if len(terms) == 0 {
		return []*KeywordResult{}, nil
	}

	// bm25() is negative; lower is better.
	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, terms, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score, rowid
		LIMIT ?`, BuildMatchQuery(terms), limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*KeywordResult{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []*KeywordResult
	best := 0.0
	for rows.Next() {
		var (
			id       int64
			docTerms string
			score    float64
		)
		if err := rows.Scan(&id, &docTerms, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		score = -score
		best = math.Max(best, score)
		results = append(results, &KeywordResult{
			ChunkID:      id,
			Score:        score,
			MatchedTerms: matchedTerms(terms, docTerms),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range results {
		if best > 0 {
			r.Score /= best
		} else {
			r.Score = 1
		}
		if r.Score <= 0 {
			r.Score = math.SmallestNonzeroFloat64
		}
	}
	return results, nil
}

func matchedTerms(queryTerms []string, docTerms string) []string {
	present := make(map[string]struct{})
	for _, t := range strings.Fields(docTerms) {
		present[t] = struct{}{}
	}
	var matched []string
	for _, t := range queryTerms {
		if _, ok := present[t]; ok {
			matched = append(matched, t)
		}
	}
	return matched
}

// GetFileByPath returns the file record, or nil if the path is not indexed.
func (s *SQLiteStore) GetFileByPath(ctx context.Context, path string) (*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, file_type, hash, size, modified, indexed_at
		FROM files WHERE path = ?`, path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}
	return f, nil
}

// GetAllFiles returns every file ordered by path.
func (s *SQLiteStore) GetAllFiles(ctx context.Context) ([]*FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, file_type, hash, size, modified, indexed_at
		FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*FileRecord, error) {
	var (
		f         FileRecord
		modified  float64
		indexedAt string
	)
	if err := row.Scan(&f.ID, &f.Path, &f.FileType, &f.Hash, &f.Size, &modified, &indexedAt); err != nil {
		return nil, err
	}
	f.Modified = fromUnixSeconds(modified)
	if t, err := time.Parse(timeLayout, indexedAt); err == nil {
		f.IndexedAt = t
	}
	return &f, nil
}

// DeleteFile removes the file and its chunks, returning the removed chunk ids.
// Deleting an unknown path is a no-op.
func (s *SQLiteStore) DeleteFile(ctx context.Context, path string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fileID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up file %s: %w", path, err)
	}

	ids, err := chunkIDsTx(ctx, tx, fileID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return nil, fmt.Errorf("failed to delete chunks of %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return nil, fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete of %s: %w", path, err)
	}
	return ids, nil
}

func (s *SQLiteStore) MaxEmbeddingRow(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	var maxRow sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(embedding_row) FROM chunks`).Scan(&maxRow); err != nil {
		return 0, fmt.Errorf("failed to query max embedding row: %w", err)
	}
	if !maxRow.Valid {
		return -1, nil
	}
	return maxRow.Int64, nil
}

func (s *SQLiteStore) InvalidateHashes(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `UPDATE files SET hash = ''`)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate hashes: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) InvalidateChunkFiles(ctx context.Context, chunkIDs []int64) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE files SET hash = '' WHERE hash != '' AND id = (SELECT file_id FROM chunks WHERE id = ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare invalidate: %w", err)
	}
	defer stmt.Close()

	total := 0
	for _, id := range chunkIDs {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to invalidate file of chunk %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit invalidate: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) AllChunkIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (*MetadataStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var (
		stats       MetadataStats
		lastIndexed sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0), MAX(indexed_at) FROM files`).
		Scan(&stats.FileCount, &stats.TotalSizeBytes, &lastIndexed)
	if err != nil {
		return nil, fmt.Errorf("failed to query file stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.ChunkCount); err != nil {
		return nil, fmt.Errorf("failed to query chunk stats: %w", err)
	}
	if lastIndexed.Valid {
		if t, err := time.Parse(timeLayout, lastIndexed.String); err == nil {
			stats.LastIndexed = t
		}
	}
	return &stats, nil
}

// Close checkpoints the WAL and closes the database. It is idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func toUnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

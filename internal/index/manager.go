package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/ragindex/internal/async"
	"github.com/Aman-CERP/ragindex/internal/chunk"
	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/embed"
	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/loader"
	"github.com/Aman-CERP/ragindex/internal/store"
)

// reconcileLockTimeout bounds how long opening an index waits for another
// writer before skipping the consistency repair.
const reconcileLockTimeout = 2 * time.Second

// Manager is one named, persistent index. Queries may run concurrently with
// each other and with a single ingestion pass.
type Manager struct {
	cfg      ManagerConfig
	dir      string
	embedder embed.Embedder
	loader   *loader.Loader
	chunker  *chunk.RecursiveChunker
	metadata store.MetadataStore
	vectors  store.VectorStore
	backend  string
	lock     *dirLock
	manifest *Manifest

	progress atomic.Pointer[async.IndexProgress]

	// writeMu serializes ingestion within the process; lock does the same
	// across processes.
	writeMu sync.Mutex
	dirty   bool
	// onDisk is the vector row map as of the last Load or Save; another
	// process replacing it means the in-memory store is stale.
	onDisk os.FileInfo

	mu     sync.RWMutex
	closed bool
}

// NewManager opens or creates the index directory StoragePath/Name, loads the
// stores and repairs any drift between them.
func NewManager(cfg ManagerConfig, deps ManagerDeps) (*Manager, error) {
	if !config.ValidIndexName(cfg.Name) {
		return nil, errors.ValidationError(fmt.Sprintf("invalid index name %q", cfg.Name), nil)
	}
	if deps.Embedder == nil {
		return nil, errors.InternalError("index manager requires an embedder", nil)
	}
	if cfg.StoragePath == "" {
		return nil, errors.ConfigError("index storage path is empty", nil)
	}

	chunker := deps.Chunker
	if chunker == nil {
		size, overlap := cfg.ChunkSize, cfg.Overlap
		if size <= 0 {
			size, overlap = chunk.DefaultChunkSize, chunk.DefaultOverlap
		}
		c, err := chunk.NewRecursiveChunker(size, overlap)
		if err != nil {
			return nil, errors.ConfigError("invalid chunking settings", err)
		}
		chunker = c
	}
	ld := deps.Loader
	if ld == nil {
		ld = loader.New(cfg.FileTypes, cfg.ExcludePatterns)
	}

	dir := filepath.Join(config.ExpandPath(cfg.StoragePath), cfg.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to create index directory", err).
			WithDetail("path", dir)
	}

	metadata, err := store.NewSQLiteStore(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to open metadata store", err).
			WithDetail("index", cfg.Name)
	}

	base := filepath.Join(dir, VectorsBase)
	backend := chooseBackend(cfg.VectorBackend, base)
	vectors, err := store.OpenVectorStore(backend, store.VectorStoreConfig{
		Dimensions: deps.Embedder.Dimensions(),
	}, base)
	if err != nil {
		_ = metadata.Close()
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to open vector store", err).
			WithDetail("index", cfg.Name)
	}

	m := &Manager{
		cfg:      cfg,
		dir:      dir,
		embedder: deps.Embedder,
		loader:   ld,
		chunker:  chunker,
		metadata: metadata,
		vectors:  vectors,
		backend:  backend,
		lock:     newDirLock(dir),
	}
	m.onDisk = m.statVectors()

	manifest, err := ReadManifest(dir)
	if err != nil {
		slog.Warn("manifest_unreadable", slog.String("index", cfg.Name), slog.String("error", err.Error()))
	}
	if manifest != nil && manifest.Model != "" && manifest.Model != deps.Embedder.ModelName() {
		slog.Warn("embedding_model_changed",
			slog.String("index", cfg.Name),
			slog.String("from", manifest.Model),
			slog.String("to", deps.Embedder.ModelName()))
	}
	m.manifest = manifest

	if err := m.reconcile(); err != nil {
		_ = m.Close()
		return nil, err
	}

	slog.Debug("index_opened",
		slog.String("index", cfg.Name),
		slog.String("backend", backend),
		slog.Int("vectors", vectors.Count()),
		slog.Int("dimension", vectors.Dimension()))
	return m, nil
}

// chooseBackend keeps the backend found on disk unless another one is
// requested, in which case the old vector files are dropped. The consistency
// pass then marks every file for re-embedding.
func chooseBackend(requested, base string) string {
	onDisk := string(store.DetectVectorBackend(base))
	switch {
	case requested == "" && onDisk == "":
		return string(store.VectorBackendFlat)
	case requested == "":
		return onDisk
	case onDisk != "" && onDisk != requested:
		slog.Warn("vector_backend_changed",
			slog.String("from", onDisk),
			slog.String("to", requested))
		if err := store.RemoveVectorFiles(base); err != nil {
			slog.Warn("vector_files_remove_failed", slog.String("error", err.Error()))
		}
	}
	return requested
}

// reconcile repairs orphan vectors and chunks without vectors. It is skipped
// when another process holds the write lock.
func (m *Manager) reconcile() error {
	ctx := context.Background()
	if err := m.lock.acquire(ctx, reconcileLockTimeout); err != nil {
		if errors.HasCode(err, errors.ErrCodeIndexLocked) {
			slog.Debug("reconcile_skipped_locked", slog.String("index", m.cfg.Name))
			return nil
		}
		return err
	}
	defer m.releaseLock()
	m.syncVectors()

	repaired, err := NewConsistencyChecker(m.metadata, m.vectors).Reconcile(ctx)
	if err != nil {
		return errors.New(errors.ErrCodeCorruptIndex, "failed to reconcile index stores", err).
			WithDetail("index", m.cfg.Name)
	}
	if repaired {
		m.dirty = true
		return m.saveVectors()
	}
	return nil
}

// Name returns the index name.
func (m *Manager) Name() string { return m.cfg.Name }

// Dir returns the index storage directory.
func (m *Manager) Dir() string { return m.dir }

// Progress returns the tracker of the current or most recent indexing pass,
// or nil when none ran in this process.
func (m *Manager) Progress() *async.IndexProgress {
	return m.progress.Load()
}

// IndexDirectory indexes every supported file under dir. Unchanged files are
// skipped without chunking or embedding. Per-file failures are collected in
// the result; the pass continues. On cancellation the files already committed
// are kept and ctx.Err() is returned with the partial result.
func (m *Manager) IndexDirectory(ctx context.Context, dir string) (*IndexResult, error) {
	return m.write(ctx, func(p *async.IndexProgress) (*IndexResult, error) {
		files, err := m.scan(ctx, dir)
		if err != nil {
			return nil, err
		}
		result := &IndexResult{}
		err = m.indexFiles(ctx, files, result, p)
		return result, err
	})
}

// Refresh removes every indexed file missing from the current listing of
// dir, then indexes dir. A missing dir lists as empty, so refreshing a
// deleted source empties the index.
func (m *Manager) Refresh(ctx context.Context, dir string) (*IndexResult, error) {
	return m.write(ctx, func(p *async.IndexProgress) (*IndexResult, error) {
		files, err := m.scan(ctx, dir)
		if err != nil {
			return nil, err
		}

		current := make(map[string]bool, len(files))
		for _, f := range files {
			current[f.Path] = true
		}
		known, err := m.metadata.GetAllFiles(ctx)
		if err != nil {
			return nil, errors.New(errors.ErrCodeStorageFailed, "failed to list indexed files", err)
		}

		var gone []string
		for _, f := range known {
			if !current[f.Path] {
				gone = append(gone, f.Path)
			}
		}

		result := &IndexResult{}
		p.SetStage(async.StageRemoving, len(gone))
		for i, path := range gone {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			p.UpdateFiles(i + 1)
			if _, err := m.removeLocked(ctx, path); err != nil {
				slog.Warn("remove_file_failed", slog.String("path", path), slog.String("error", err.Error()))
				result.Errors = append(result.Errors, FileError{Path: path, Error: err.Error()})
				continue
			}
			result.FilesRemoved++
			slog.Debug("file_removed", slog.String("path", path))
		}

		err = m.indexFiles(ctx, files, result, p)
		return result, err
	})
}

// RemoveFile deletes path and its chunks from the index. It reports whether
// the file was indexed.
func (m *Manager) RemoveFile(ctx context.Context, path string) (bool, error) {
	var removed bool
	_, err := m.write(ctx, func(*async.IndexProgress) (*IndexResult, error) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidPath, "cannot resolve path", err)
		}
		removed, err = m.removeLocked(ctx, abs)
		if err != nil {
			return nil, err
		}
		return &IndexResult{}, m.saveVectors()
	})
	return removed, err
}

// write runs fn holding the process write mutex and the directory lock. The
// vector store is saved afterwards whether or not fn succeeded.
func (m *Manager) write(ctx context.Context, fn func(p *async.IndexProgress) (*IndexResult, error)) (*IndexResult, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.lock.acquire(ctx, m.cfg.LockTimeout); err != nil {
		return nil, err
	}
	defer m.releaseLock()
	m.syncVectors()

	p := async.NewIndexProgress()
	m.progress.Store(p)

	start := time.Now()
	result, err := fn(p)
	if saveErr := m.saveVectors(); saveErr != nil && err == nil {
		err = saveErr
	}
	if result != nil {
		result.Duration = time.Since(start)
		m.finish(p, result, err)
	} else if err != nil {
		p.SetError(err.Error())
	}
	return result, err
}

func (m *Manager) finish(p *async.IndexProgress, result *IndexResult, err error) {
	if err != nil {
		p.SetError(err.Error())
		slog.Warn("index_pass_stopped",
			slog.String("index", m.cfg.Name),
			slog.Int("files_indexed", result.FilesIndexed),
			slog.String("error", err.Error()))
		return
	}
	p.SetReady()
	slog.Info("index_pass_complete",
		slog.String("index", m.cfg.Name),
		slog.Int("files_indexed", result.FilesIndexed),
		slog.Int("files_unchanged", result.FilesUnchanged),
		slog.Int("files_failed", result.FilesFailed),
		slog.Int("files_removed", result.FilesRemoved),
		slog.Int("chunks_created", result.ChunksCreated),
		slog.Duration("duration", result.Duration))
}

// scan lists the files under dir and records dir as the index source. A
// missing dir is logged and lists as empty.
func (m *Manager) scan(ctx context.Context, dir string) ([]loader.FileInfo, error) {
	var files []loader.FileInfo
	err := m.loader.Walk(ctx, dir, func(fi loader.FileInfo) error {
		files = append(files, fi)
		return nil
	})
	if errors.HasCode(err, errors.ErrCodeFileNotFound) {
		slog.Error("source_directory_missing",
			slog.String("index", m.cfg.Name),
			slog.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(dir); err == nil {
		m.recordSource(abs)
	}
	return files, nil
}

func (m *Manager) recordSource(dir string) {
	now := time.Now().UTC()
	next := Manifest{CreatedAt: now}
	if m.manifest != nil {
		next = *m.manifest
	}
	next.Name = m.cfg.Name
	next.Source = dir
	next.Backend = m.backend
	next.Model = m.embedder.ModelName()
	next.Dimension = m.vectors.Dimension()
	next.UpdatedAt = now
	if err := writeManifest(m.dir, &next); err != nil {
		slog.Warn("manifest_write_failed", slog.String("index", m.cfg.Name), slog.String("error", err.Error()))
		return
	}
	m.mu.Lock()
	m.manifest = &next
	m.mu.Unlock()
}

// Source returns the directory this index was last built from, or "" when
// unknown.
func (m *Manager) Source() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.manifest == nil {
		return ""
	}
	return m.manifest.Source
}

func (m *Manager) indexFiles(ctx context.Context, files []loader.FileInfo, result *IndexResult, p *async.IndexProgress) error {
	p.SetStage(async.StageIndexing, len(files))

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := m.indexFile(ctx, f.Path)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			slog.Warn("index_file_failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			result.FilesFailed++
			p.RecordFailure()
			result.Errors = append(result.Errors, FileError{Path: f.Path, Error: err.Error()})
		case res == nil:
			// Binary or unreadable as text.
		case res.Outcome == store.OutcomeUnchanged:
			result.FilesUnchanged++
		default:
			result.FilesIndexed++
			result.ChunksCreated += len(res.ChunkIDs)
		}

		p.UpdateFiles(i + 1)
		p.UpdateChunks(result.ChunksCreated)
	}
	return nil
}

// indexFile brings one file up to date. A nil result means the file was
// skipped by the loader.
func (m *Manager) indexFile(ctx context.Context, path string) (*store.SaveResult, error) {
	doc, err := m.loader.LoadFile(path)
	if err != nil || doc == nil {
		return nil, err
	}

	existing, err := m.metadata.GetFileByPath(ctx, doc.Path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to look up file", err)
	}
	if existing != nil && existing.Hash == store.ContentHash(doc.Content) {
		return &store.SaveResult{FileID: existing.ID, Outcome: store.OutcomeUnchanged}, nil
	}

	chunks := m.chunker.Chunk(doc.Content)
	var vecs [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err = m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, errors.New(errors.ErrCodeEmbeddingFailed, "failed to embed chunks", err)
		}
	}

	row := int64(m.vectors.NextRow())
	inputs := make([]store.ChunkInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = store.ChunkInput{
			Text:         c.Text,
			StartChar:    c.StartChar,
			EndChar:      c.EndChar,
			EmbeddingRow: row + int64(i),
		}
	}

	res, err := m.metadata.SaveDocument(ctx, store.FileInput{
		Path:     doc.Path,
		FileType: doc.Type,
		Content:  doc.Content,
		Size:     doc.Size,
		Modified: doc.Modified,
	}, inputs)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to save document", err)
	}
	if res.Outcome == store.OutcomeUnchanged {
		return res, nil
	}

	if len(res.PurgedChunkIDs) > 0 {
		if err := m.vectors.Delete(ctx, res.PurgedChunkIDs); err != nil {
			return nil, errors.New(errors.ErrCodeStorageFailed, "failed to tombstone replaced vectors", err)
		}
		m.dirty = true
	}
	if len(res.ChunkIDs) > 0 {
		if err := m.vectors.Add(ctx, res.ChunkIDs, vecs); err != nil {
			// Metadata is committed; force the file to be re-embedded next pass.
			if _, invErr := m.metadata.InvalidateChunkFiles(ctx, res.ChunkIDs); invErr != nil {
				slog.Warn("invalidate_failed", slog.String("path", doc.Path), slog.String("error", invErr.Error()))
			}
			return nil, vectorError(err)
		}
		m.dirty = true
	}

	slog.Debug("file_indexed",
		slog.String("path", doc.Path),
		slog.String("outcome", res.Outcome.String()),
		slog.Int("chunks", len(res.ChunkIDs)))
	return res, nil
}

func (m *Manager) removeLocked(ctx context.Context, path string) (bool, error) {
	existing, err := m.metadata.GetFileByPath(ctx, path)
	if err != nil {
		return false, errors.New(errors.ErrCodeStorageFailed, "failed to look up file", err)
	}
	if existing == nil {
		return false, nil
	}
	purged, err := m.metadata.DeleteFile(ctx, path)
	if err != nil {
		return false, errors.New(errors.ErrCodeStorageFailed, "failed to delete file", err)
	}
	if len(purged) > 0 {
		if err := m.vectors.Delete(ctx, purged); err != nil {
			return true, errors.New(errors.ErrCodeStorageFailed, "failed to tombstone vectors", err)
		}
		m.dirty = true
	}
	return true, nil
}

func vectorError(err error) error {
	var dm store.ErrDimensionMismatch
	if stderrors.As(err, &dm) {
		return errors.New(errors.ErrCodeDimensionMismatch, err.Error(), err).
			WithSuggestion("The embedding model changed; rebuild the index")
	}
	return errors.New(errors.ErrCodeStorageFailed, "failed to append vectors", err)
}

// saveVectors persists the vector store if anything changed. Callers hold the
// directory lock.
func (m *Manager) saveVectors() error {
	if !m.dirty {
		return nil
	}
	if err := m.vectors.Save(filepath.Join(m.dir, VectorsBase)); err != nil {
		return errors.New(errors.ErrCodeStorageFailed, "failed to save vectors", err).
			WithDetail("index", m.cfg.Name)
	}
	m.dirty = false
	m.onDisk = m.statVectors()
	return nil
}

func (m *Manager) statVectors() os.FileInfo {
	info, err := os.Stat(filepath.Join(m.dir, VectorsBase) + ".map")
	if err != nil {
		return nil
	}
	return info
}

// syncVectors reloads the vector store when another process saved it since
// our last Load or Save, so rows are reserved past the other writer's.
// Callers hold the directory lock.
func (m *Manager) syncVectors() {
	current := m.statVectors()
	if current == nil || (m.onDisk != nil && os.SameFile(m.onDisk, current) &&
		m.onDisk.ModTime().Equal(current.ModTime()) && m.onDisk.Size() == current.Size()) {
		return
	}
	if m.dirty {
		slog.Warn("unsaved_vectors_discarded", slog.String("index", m.cfg.Name))
	}
	if err := m.vectors.Load(filepath.Join(m.dir, VectorsBase)); err != nil {
		slog.Warn("vector_reload_failed", slog.String("index", m.cfg.Name), slog.String("error", err.Error()))
		return
	}
	m.dirty = false
	m.onDisk = current
	slog.Debug("vectors_reloaded",
		slog.String("index", m.cfg.Name),
		slog.Int("rows", m.vectors.NextRow()))
}

func (m *Manager) releaseLock() {
	if err := m.lock.release(); err != nil {
		slog.Warn("index_unlock_failed", slog.String("index", m.cfg.Name), slog.String("error", err.Error()))
	}
}

// Stats describes the index.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	ms, err := m.metadata.Stats(ctx)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to read index stats", err)
	}
	vs := m.vectors.Stats()
	return &Stats{
		Name:              m.cfg.Name,
		Source:            m.Source(),
		Files:             ms.FileCount,
		Chunks:            ms.ChunkCount,
		SizeBytes:         ms.TotalSizeBytes,
		Vectors:           vs.LiveVectors,
		TombstonedVectors: vs.Tombstoned,
		Dimension:         vs.Dimension,
		Backend:           m.backend,
		Model:             m.embedder.ModelName(),
		LastIndexed:       ms.LastIndexed,
	}, nil
}

// ListFiles returns every indexed file ordered by path.
func (m *Manager) ListFiles(ctx context.Context) ([]*FileInfo, error) {
	return m.SearchFiles(ctx, "")
}

// SearchFiles returns indexed files whose path contains pattern, ignoring
// case. An empty pattern matches everything.
func (m *Manager) SearchFiles(ctx context.Context, pattern string) ([]*FileInfo, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	records, err := m.metadata.GetAllFiles(ctx)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to list files", err)
	}

	needle := strings.ToLower(pattern)
	files := make([]*FileInfo, 0, len(records))
	for _, r := range records {
		if needle != "" && !strings.Contains(strings.ToLower(r.Path), needle) {
			continue
		}
		files = append(files, &FileInfo{
			Path:      r.Path,
			Type:      r.FileType,
			Size:      r.Size,
			Modified:  r.Modified,
			IndexedAt: r.IndexedAt,
		})
	}
	return files, nil
}

// File returns the indexed file at path, or nil when it is not indexed.
func (m *Manager) File(ctx context.Context, path string) (*FileInfo, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	r, err := m.metadata.GetFileByPath(ctx, path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to look up file", err)
	}
	if r == nil {
		return nil, nil
	}
	return &FileInfo{
		Path:      r.Path,
		Type:      r.FileType,
		Size:      r.Size,
		Modified:  r.Modified,
		IndexedAt: r.IndexedAt,
	}, nil
}

func (m *Manager) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errors.New(errors.ErrCodeIndexNotFound, fmt.Sprintf("index %q is closed", m.cfg.Name), nil)
	}
	return nil
}

// Close waits for a running ingestion pass, saves pending vectors and closes
// both stores. The embedder is not closed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	var errs []error
	if m.dirty {
		if err := m.lock.acquire(context.Background(), reconcileLockTimeout); err != nil {
			errs = append(errs, err)
		} else {
			errs = append(errs, m.saveVectors())
			m.releaseLock()
		}
	}
	errs = append(errs, m.vectors.Close(), m.metadata.Close())
	return stderrors.Join(errs...)
}

package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/ragindex/internal/async"
	"github.com/Aman-CERP/ragindex/internal/config"
	"github.com/Aman-CERP/ragindex/internal/embed"
	"github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/internal/history"
	"github.com/Aman-CERP/ragindex/internal/loader"
	"github.com/Aman-CERP/ragindex/internal/watcher"
)

// Registry owns the named indexes under the storage path. Indexes are
// opened lazily and shared by every caller.
type Registry struct {
	cfg      *config.Config
	embedder embed.Embedder
	history  *history.Store

	mu       sync.Mutex
	managers map[string]*Manager
	workers  map[string]*async.RefreshWorker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry. hist may be nil to disable query history.
func NewRegistry(cfg *config.Config, embedder embed.Embedder, hist *history.Store) *Registry {
	return &Registry{
		cfg:      cfg,
		embedder: embedder,
		history:  hist,
		managers: make(map[string]*Manager),
		workers:  make(map[string]*async.RefreshWorker),
	}
}

func (r *Registry) managerConfig(name string) ManagerConfig {
	return ManagerConfig{
		Name:            name,
		StoragePath:     r.cfg.StoragePath,
		ChunkSize:       r.cfg.Chunking.ChunkSize,
		Overlap:         r.cfg.Chunking.Overlap,
		FileTypes:       r.cfg.FileTypes,
		ExcludePatterns: r.cfg.ExcludePatterns,
		VectorBackend:   r.cfg.Search.VectorBackend,
	}
}

// Open returns the named index, creating it when it does not exist yet.
func (r *Registry) Open(name string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openLocked(name)
}

func (r *Registry) openLocked(name string) (*Manager, error) {
	if m, ok := r.managers[name]; ok {
		return m, nil
	}
	m, err := NewManager(r.managerConfig(name), ManagerDeps{Embedder: r.embedder})
	if err != nil {
		return nil, err
	}
	r.managers[name] = m
	return m, nil
}

// Get returns an index that is configured or already exists on disk. Unknown
// names return ERR_207_INDEX_NOT_FOUND.
func (r *Registry) Get(name string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[name]; ok {
		return m, nil
	}
	if _, ok := r.cfg.Index(name); !ok && !r.existsOnDisk(name) {
		return nil, errors.New(errors.ErrCodeIndexNotFound, fmt.Sprintf("no index named %q", name), nil).
			WithSuggestion("Run: ragindex index <dir> --name " + name)
	}
	return r.openLocked(name)
}

func (r *Registry) existsOnDisk(name string) bool {
	if !config.ValidIndexName(name) {
		return false
	}
	_, err := os.Stat(filepath.Join(r.cfg.IndexDir(name), MetadataFile))
	return err == nil
}

// Names lists configured indexes and indexes found on disk, sorted.
func (r *Registry) Names() ([]string, error) {
	seen := make(map[string]bool)
	for _, idx := range r.cfg.Indexes {
		seen[idx.Name] = true
	}

	entries, err := os.ReadDir(config.ExpandPath(r.cfg.StoragePath))
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.New(errors.ErrCodeStorageFailed, "failed to list indexes", err)
	}
	for _, e := range entries {
		if e.IsDir() && r.existsOnDisk(e.Name()) {
			seen[e.Name()] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SourceDir returns the directory the named index is built from: the
// configured path, or the directory it was last indexed from.
func (r *Registry) SourceDir(name string) (string, error) {
	if idx, ok := r.cfg.Index(name); ok {
		return config.ExpandPath(idx.Path), nil
	}
	m, err := r.Get(name)
	if err != nil {
		return "", err
	}
	if src := m.Source(); src != "" {
		return src, nil
	}
	return "", errors.New(errors.ErrCodeIndexNotFound,
		fmt.Sprintf("index %q has no recorded source directory", name), nil).
		WithSuggestion("Run: ragindex index <dir> --name " + name)
}

// Refresh refreshes the named index from its source directory on the
// index's refresh worker and waits for the result. Runs queued by watchers or
// TriggerRefresh finish first, and the pass never executes on the caller's
// goroutine.
func (r *Registry) Refresh(ctx context.Context, name string) (*IndexResult, error) {
	w, m, err := r.worker(name)
	if err != nil {
		return nil, err
	}

	var result *IndexResult
	err = w.Do(ctx, func(ctx context.Context) error {
		dir, err := r.SourceDir(name)
		if err != nil {
			return err
		}
		result, err = m.Refresh(ctx, dir)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TriggerRefresh schedules a background refresh of the named index without
// waiting for it.
func (r *Registry) TriggerRefresh(name string) error {
	w, _, err := r.worker(name)
	if err != nil {
		return err
	}
	w.Trigger()
	return nil
}

// worker returns the refresh worker of the named index, starting one if the
// index has none yet. The index must have a source directory.
func (r *Registry) worker(name string) (*async.RefreshWorker, *Manager, error) {
	if _, err := r.SourceDir(name); err != nil {
		return nil, nil, err
	}
	m, err := r.Get(name)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[name]; ok {
		return w, m, nil
	}
	w := async.NewRefreshWorker(name, func(ctx context.Context) error {
		dir, err := r.SourceDir(name)
		if err != nil {
			return err
		}
		_, err = m.Refresh(ctx, dir)
		return err
	})
	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	w.Start(ctx)
	r.workers[name] = w
	return w, m, nil
}

// Query searches one index, or every index when name is empty. Fan-out
// results are merged by score and cut to TopK. Executed queries are recorded
// in the history store when one is configured.
func (r *Registry) Query(ctx context.Context, name string, opts QueryOptions) ([]*SearchResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	var (
		results []*SearchResult
		err     error
	)
	if name != "" {
		var m *Manager
		if m, err = r.Get(name); err == nil {
			results, err = m.Query(ctx, opts)
		}
	} else {
		results, err = r.queryAll(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	r.record(ctx, name, opts, results, time.Since(start))
	return results, nil
}

func (r *Registry) queryAll(ctx context.Context, opts QueryOptions) ([]*SearchResult, error) {
	names, err := r.Names()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, errors.New(errors.ErrCodeIndexNotFound, "no indexes exist", nil).
			WithSuggestion("Run: ragindex index <dir>")
	}

	perIndex := make([][]*SearchResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			m, err := r.Get(name)
			if err != nil {
				return err
			}
			res, err := m.Query(gctx, opts)
			if err != nil {
				return err
			}
			perIndex[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []*SearchResult
	for _, res := range perIndex {
		merged = append(merged, res...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.ChunkID < b.ChunkID
	})
	if len(merged) > opts.TopK {
		merged = merged[:opts.TopK]
	}
	return merged, nil
}

func (r *Registry) record(ctx context.Context, name string, opts QueryOptions, results []*SearchResult, took time.Duration) {
	if r.history == nil {
		return
	}
	summaries := make([]history.ResultSummary, len(results))
	for i, res := range results {
		summaries[i] = history.ResultSummary{
			ChunkID:  res.ChunkID,
			FilePath: res.FilePath,
			Score:    res.Score,
			Index:    res.Index,
		}
	}
	indexName := name
	if indexName == "" {
		indexName = "*"
	}
	_, err := r.history.SaveQuery(ctx, &history.Entry{
		Query:       opts.Text,
		Index:       indexName,
		TopK:        opts.TopK,
		ResultCount: len(results),
		Duration:    took,
		Results:     summaries,
	})
	if err != nil {
		slog.Warn("history_save_failed", slog.String("error", err.Error()))
	}
}

// Start opens every configured index, schedules an initial refresh for each
// and watches the ones marked watch: true. It returns once everything is
// launched; work continues until ctx is done or Close is called.
func (r *Registry) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.ctx, r.cancel = ctx, cancel
	r.mu.Unlock()

	filter := loader.New(r.cfg.FileTypes, r.cfg.ExcludePatterns)

	for _, idx := range r.cfg.Indexes {
		if _, err := r.Open(idx.Name); err != nil {
			return err
		}
		dir := config.ExpandPath(idx.Path)

		w, _, err := r.worker(idx.Name)
		if err != nil {
			return err
		}
		w.Trigger()

		if idx.Watch {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				err := watcher.Watch(ctx, dir, watcher.Options{
					Debounce: r.cfg.Watch.Debounce,
					Filter:   filter,
				}, func(string) { w.Trigger() })
				if err != nil {
					slog.Warn("watch_failed", slog.String("index", idx.Name), slog.String("error", err.Error()))
				}
			}()
		}

		slog.Info("index_scheduled",
			slog.String("index", idx.Name),
			slog.String("dir", dir),
			slog.Bool("watch", idx.Watch))
	}
	return nil
}

// Close stops watchers and workers and closes every open index.
func (r *Registry) Close() error {
	r.mu.Lock()
	cancel := r.cancel
	workers := r.workers
	r.workers = make(map[string]*async.RefreshWorker)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	for _, w := range workers {
		w.Stop()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, m := range r.managers {
		errs = append(errs, m.Close())
		delete(r.managers, name)
	}
	return stderrors.Join(errs...)
}

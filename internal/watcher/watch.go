package watcher

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/ragindex/internal/errors"
)

// Watcher watches one directory tree. New subdirectories are added as they
// appear. Call Run to start it; batches arrive on Events.
type Watcher struct {
	root string
	opts Options

	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errs      chan error
	stopCh    chan struct{}
	dropped   atomic.Uint64

	mu      sync.Mutex
	stopped bool
}

// New prepares a watcher for dir. It returns ERR_201_FILE_NOT_FOUND when dir
// does not exist.
func New(dir string, opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidPath, "invalid directory", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "watched directory does not exist: "+dir, err)
		}
		return nil, errors.New(errors.ErrCodeStorageFailed, "cannot access watched directory", err)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, "not a directory: "+dir, nil)
	}

	w := &Watcher{
		root:      root,
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errs:      make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("fsnotify_unavailable_polling",
				slog.String("dir", root),
				slog.String("error", err.Error()))
		} else {
			w.fsw = fsw
		}
	}
	return w, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string { return w.root }

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Run watches until ctx is done or Stop is called. Cancellation is a clean
// shutdown and returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	go w.forward()
	defer func() { _ = w.Stop() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var err error
	if w.fsw != nil {
		err = w.runFsnotify(ctx)
	} else {
		err = newPoller(w.root, w.opts.PollInterval, w.accept).run(ctx, w.debouncer.Add)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	slog.Debug("watch_started", slog.String("dir", w.root), slog.String("mode", w.Mode()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.report(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}
	if !w.accept(rel, isDir) {
		return
	}

	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			if err := w.addTree(ev.Name); err != nil {
				w.report(err)
			}
		}
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Op.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// accept applies the filter. Directories are only checked against excludes;
// files must also have an indexed extension.
func (w *Watcher) accept(rel string, isDir bool) bool {
	if rel == "." || rel == "" || rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return false
	}
	f := w.opts.Filter
	if f == nil {
		return true
	}
	if f.Excluded(rel, isDir) {
		return false
	}
	return isDir || f.Supported(rel)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		if rel != "." && !w.accept(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// forward moves debounced batches to Events and closes it when the
// debouncer stops.
func (w *Watcher) forward() {
	defer close(w.events)
	for batch := range w.debouncer.Output() {
		select {
		case w.events <- batch:
		default:
			n := w.dropped.Add(1)
			slog.Warn("watch_batch_dropped",
				slog.Int("batch_size", len(batch)),
				slog.Uint64("dropped_total", n))
		}
	}
}

func (w *Watcher) report(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

// Events returns debounced batches. It is closed after the watcher stops.
func (w *Watcher) Events() <-chan []FileEvent { return w.events }

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Dropped returns how many batches were discarded because Events was full.
func (w *Watcher) Dropped() uint64 { return w.dropped.Load() }

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// Watch runs a watcher on dir and calls onChange with the watched directory
// after every debounced batch. It blocks until ctx is done.
func Watch(ctx context.Context, dir string, opts Options, onChange func(dir string)) error {
	w, err := New(dir, opts)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				return <-done
			}
			slog.Debug("watch_changes", slog.String("dir", w.root), slog.Int("events", len(batch)))
			onChange(w.root)
		case err := <-w.Errors():
			slog.Warn("watch_error", slog.String("dir", w.root), slog.String("error", err.Error()))
		}
	}
}

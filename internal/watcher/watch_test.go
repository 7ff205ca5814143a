package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragindex/internal/errors"
)

// mdFilter accepts .md files outside a "skip" directory.
type mdFilter struct{}

func (mdFilter) Excluded(rel string, isDir bool) bool {
	return rel == "skip" || strings.HasPrefix(rel, "skip/")
}

func (mdFilter) Supported(path string) bool {
	return filepath.Ext(path) == ".md"
}

func startWatcher(t *testing.T, dir string, opts Options) *Watcher {
	t.Helper()

	w, err := New(dir, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Let the watcher register its directories.
	time.Sleep(150 * time.Millisecond)
	return w
}

func waitBatch(t *testing.T, w *Watcher) []FileEvent {
	t.Helper()
	select {
	case batch := <-w.Events():
		return batch
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for events")
		return nil
	}
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{})

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))
}

func TestWatcher_ReportsSupportedFiles(t *testing.T) {
	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			// Given: a watched directory with an .md filter
			dir := t.TempDir()
			w := startWatcher(t, dir, Options{
				Debounce:     50 * time.Millisecond,
				PollInterval: 50 * time.Millisecond,
				Filter:       mdFilter{},
				ForcePolling: polling,
			})

			// When: an unsupported file and a supported file are written
			require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.bin"), []byte("x"), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("hello"), 0o644))

			// Then: only the supported file is reported
			batch := waitBatch(t, w)
			require.Len(t, batch, 1)
			assert.Equal(t, "note.md", batch[0].Path)
		})
	}
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, Options{Debounce: 50 * time.Millisecond, Filter: mdFilter{}})

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	_ = waitBatch(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "deep.md"), []byte("deep"), 0o644))

	batch := waitBatch(t, w)
	var paths []string
	for _, e := range batch {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "nested/deep.md")
}

func TestWatcher_ExcludedDirectoryIsSilent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "skip"), 0o755))
	w := startWatcher(t, dir, Options{Debounce: 50 * time.Millisecond, Filter: mdFilter{}})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip", "hidden.md"), []byte("x"), 0o644))

	select {
	case batch := <-w.Events():
		t.Fatalf("expected no events, got %v", batch)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_CallsOnChangeOncePerBurst(t *testing.T) {
	// Given: Watch running with a 100ms quiet window
	dir := t.TempDir()
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, Options{Debounce: 100 * time.Millisecond, Filter: mdFilter{}}, func(got string) {
			assert.Equal(t, dir, got)
			calls.Add(1)
		})
	}()
	time.Sleep(150 * time.Millisecond)

	// When: several files change in quick succession
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}

	// Then: the callback fires once
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	// And: cancelling stops Watch cleanly
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), Options{})
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

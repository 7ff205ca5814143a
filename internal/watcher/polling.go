package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"
)

// poller detects changes by rescanning the tree on an interval. It is used
// where fsnotify is unavailable, such as some network mounts.
type poller struct {
	root     string
	interval time.Duration
	accept   func(rel string, isDir bool) bool
	state    map[string]fileSnapshot
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

func newPoller(root string, interval time.Duration, accept func(string, bool) bool) *poller {
	return &poller{root: root, interval: interval, accept: accept}
}

// run scans until ctx is done, passing every detected change to emit.
func (p *poller) run(ctx context.Context, emit func(FileEvent)) error {
	state, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	p.state = state

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current, err := p.snapshot()
			if err != nil {
				return fmt.Errorf("rescan: %w", err)
			}
			for _, e := range diffSnapshots(p.state, current) {
				emit(e)
			}
			p.state = current
		}
	}
}

func (p *poller) snapshot() (map[string]fileSnapshot, error) {
	state := make(map[string]fileSnapshot)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.root {
				return err
			}
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !p.accept(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return state, err
}

func diffSnapshots(prev, current map[string]fileSnapshot) []FileEvent {
	now := time.Now()
	var events []FileEvent
	for rel, cur := range current {
		old, ok := prev[rel]
		switch {
		case !ok:
			events = append(events, FileEvent{Path: rel, Operation: OpCreate, IsDir: cur.isDir, Timestamp: now})
		case !cur.isDir && (old.modTime != cur.modTime || old.size != cur.size):
			events = append(events, FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel, old := range prev {
		if _, ok := current[rel]; !ok {
			events = append(events, FileEvent{Path: rel, Operation: OpDelete, IsDir: old.isDir, Timestamp: now})
		}
	}
	return events
}

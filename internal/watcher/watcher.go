// Package watcher reports changes under an indexed directory. It uses
// fsnotify and falls back to polling where fsnotify cannot be initialized.
// Events are filtered against the index's include and exclude rules and
// debounced so that bursts from editors or checkouts trigger one refresh.
package watcher

import (
	"time"
)

// Operation is the kind of file system change.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change. Path is slash-separated and relative to the
// watched directory.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Filter decides which paths are worth reporting. *loader.Loader satisfies it.
type Filter interface {
	// Excluded reports whether the relative path matches an exclude pattern.
	Excluded(relPath string, isDir bool) bool
	// Supported reports whether a file has an indexed extension.
	Supported(path string) bool
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the watcher waits for quiet before emitting.
	// Default: 2s
	Debounce time.Duration

	// PollInterval is used only by the polling fallback.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize bounds queued batches. Default: 100
	EventBufferSize int

	// Filter drops irrelevant paths. Nil reports everything except .git.
	Filter Filter

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// Default option values.
const (
	DefaultDebounce     = 2 * time.Second
	DefaultPollInterval = 5 * time.Second
	defaultBufferSize   = 100
)

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaultBufferSize
	}
	return o
}

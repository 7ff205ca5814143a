package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/ragindex/internal/errors"
)

const (
	defaultLockTimeout = 30 * time.Second
	lockRetryDelay     = 100 * time.Millisecond
)

// dirLock is a cross-process exclusive lock on an index directory. Only the
// holder may write the index files.
type dirLock struct {
	flock *flock.Flock
}

func newDirLock(dir string) *dirLock {
	return &dirLock{flock: flock.New(filepath.Join(dir, LockFile))}
}

// acquire waits up to timeout for the lock. Another process still holding it
// after that yields ERR_208_INDEX_LOCKED.
func (l *dirLock) acquire(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return errors.New(errors.ErrCodeStorageFailed, "failed to create lock directory", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := l.flock.TryLockContext(lockCtx, lockRetryDelay)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && lockCtx.Err() == nil {
		return errors.New(errors.ErrCodeStorageFailed, "failed to acquire index lock", err)
	}
	if !ok {
		return errors.New(errors.ErrCodeIndexLocked,
			fmt.Sprintf("index is being written by another process (%s)", l.flock.Path()), nil).
			WithSuggestion("Wait for the other ragindex process to finish, then retry")
	}
	return nil
}

func (l *dirLock) release() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrWorkerStopped is returned by Do when the worker is not running.
var ErrWorkerStopped = errors.New("refresh worker is stopped")

// RefreshFunc performs one refresh. It should return promptly once ctx is
// cancelled.
type RefreshFunc func(ctx context.Context) error

// RefreshWorker runs a RefreshFunc on a dedicated goroutine whenever it is
// triggered. Triggers that arrive while a run is in progress collapse into a
// single follow-up run, so bursts of changes never queue more than one pass.
// Do runs an explicit request on the same goroutine, so refreshes of one
// index never overlap.
type RefreshWorker struct {
	name    string
	refresh RefreshFunc
	pending chan struct{}
	jobs    chan job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
	runs    int
}

// NewRefreshWorker creates a stopped worker. name is used in logs.
func NewRefreshWorker(name string, fn RefreshFunc) *RefreshWorker {
	return &RefreshWorker{
		name:    name,
		refresh: fn,
		pending: make(chan struct{}, 1),
		jobs:    make(chan job),
	}
}

type job struct {
	ctx    context.Context
	fn     RefreshFunc
	result chan error
}

// Trigger requests a run without blocking. It is a no-op when a run is
// already pending.
func (w *RefreshWorker) Trigger() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutine. Calling Start on a running worker
// does nothing.
func (w *RefreshWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(ctx, w.done)
}

func (w *RefreshWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.pending:
			w.run(ctx, w.refresh)
		case j := <-w.jobs:
			if err := j.ctx.Err(); err != nil {
				j.result <- err
				continue
			}
			// The job stops on either the worker's or the caller's cancellation.
			jctx, cancel := context.WithCancel(ctx)
			stop := context.AfterFunc(j.ctx, cancel)
			j.result <- w.run(jctx, j.fn)
			stop()
			cancel()
		}
	}
}

func (w *RefreshWorker) run(ctx context.Context, fn RefreshFunc) error {
	err := fn(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Warn("refresh_failed", slog.String("index", w.name), slog.String("error", err.Error()))
	}

	w.mu.Lock()
	w.runs++
	w.lastErr = err
	w.mu.Unlock()
	return err
}

// Do runs fn on the worker goroutine once any run in progress has finished,
// and returns its error. Cancelling ctx cancels fn.
func (w *RefreshWorker) Do(ctx context.Context, fn RefreshFunc) error {
	w.mu.Lock()
	running, done := w.running, w.done
	w.mu.Unlock()
	if !running {
		return ErrWorkerStopped
	}

	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return ErrWorkerStopped
	}

	select {
	case err := <-j.result:
		return err
	case <-done:
		// The loop always answers a job it accepted before exiting.
		return <-j.result
	}
}

// Stop cancels a running refresh and waits for the goroutine to exit.
func (w *RefreshWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
}

// Wait blocks until the worker goroutine has exited after Stop or after the
// context passed to Start is done.
func (w *RefreshWorker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Runs returns how many refreshes have completed.
func (w *RefreshWorker) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

// LastError returns the error of the most recent refresh.
func (w *RefreshWorker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

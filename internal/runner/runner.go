// Package runner executes background jobs decoupled from the HTTP
// request cycle. Jobs are fire-and-forget: no cancellation, no retries,
// no completion callbacks. A job that dies mid-pipeline leaves whatever
// state it last persisted; recovery is a manual operation.
package runner

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobFunc is the body of a background job.
type JobFunc func(ctx context.Context)

// Runner dispatches jobs onto their own goroutines.
type Runner struct {
	wg      sync.WaitGroup
	entropy *ulid.MonotonicEntropy
	mu      sync.Mutex
}

// New returns a Runner.
func New() *Runner {
	return &Runner{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Submit starts fn in the background and returns immediately with the
// job id. Panics are recovered and logged so a misbehaving job cannot
// take the server down.
func (r *Runner) Submit(name string, fn JobFunc) string {
	r.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("background job panicked", "job", name, "job_id", id, "panic", rec)
			}
		}()

		slog.Info("background job started", "job", name, "job_id", id)
		fn(context.Background())
		slog.Info("background job finished", "job", name, "job_id", id)
	}()

	return id
}

// Wait blocks until every submitted job has returned. Used by tests and
// graceful shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

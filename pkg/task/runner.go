// Package task provides the fire-and-forget scheduling abstraction used for
// chunk fan-out, batch extraction, and enrichment hand-offs. Making the
// scheduler explicit keeps the "all chunks done" race deterministic in
// tests: the synchronous runner executes tasks inline.
package task

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Runner schedules a task to run independently of the caller.
type Runner interface {
	Go(name string, fn func(ctx context.Context))
}

// Background runs each task on its own goroutine with panic recovery. Tasks
// receive a fresh background context: a caller's cancellation must not
// abort in-flight work (mutation paths tolerate writing into terminal jobs
// instead).
type Background struct {
	wg sync.WaitGroup
}

func NewBackground() *Background {
	return &Background{}
}

func (r *Background) Go(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Background task panicked", "task", name, "panic", rec, "stack", string(debug.Stack()))
			}
		}()
		fn(context.Background())
	}()
}

// Wait blocks until every scheduled task has returned. Used on shutdown.
func (r *Background) Wait() {
	r.wg.Wait()
}

// Sync executes tasks inline, in submission order. Test use only.
type Sync struct{}

func (Sync) Go(name string, fn func(ctx context.Context)) {
	fn(context.Background())
}

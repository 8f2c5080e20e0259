// Package sidetask runs best-effort background work off the request path.
package sidetask

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const DefaultTimeout = 5 * time.Second

// Task is a unit of background work. Its error is only logged.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	fn   Task
}

// Runner executes tasks on a fixed number of goroutines.
// Tasks run on their own context so they outlive the request that dispatched them.
type Runner struct {
	tasks   chan namedTask
	timeout time.Duration
	wg      sync.WaitGroup

	closeMu sync.Mutex
	closed  bool
}

func NewRunner(workers, queueSize int, timeout time.Duration) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Runner{
		tasks:   make(chan namedTask, queueSize),
		timeout: timeout,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	return r
}

func (r *Runner) work() {
	defer r.wg.Done()
	for task := range r.tasks {
		r.run(task)
	}
}

func (r *Runner) run(task namedTask) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Default().Error("side task panicked", "task", task.name, "panic", fmt.Sprint(recovered))
		}
	}()

	if err := task.fn(ctx); err != nil {
		slog.Default().Warn("side task failed", "task", task.name, "error", err)
		return
	}
	slog.Default().Debug("side task done", "task", task.name)
}

// Go enqueues fn without blocking. It reports false when the task was dropped
// because the queue is full or the runner is closed.
func (r *Runner) Go(name string, fn Task) bool {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		slog.Default().Warn("side task dropped, runner closed", "task", name)
		return false
	}

	select {
	case r.tasks <- namedTask{name: name, fn: fn}:
		return true
	default:
		slog.Default().Warn("side task dropped, queue full", "task", name, "queue_size", cap(r.tasks))
		return false
	}
}

// Close stops accepting tasks and waits for queued ones until ctx is done.
func (r *Runner) Close(ctx context.Context) error {
	r.closeMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.tasks)
	}
	r.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("side tasks still running: %w", ctx.Err())
	}
}

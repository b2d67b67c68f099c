package jobs

import (
	"sync"

	"go.uber.org/zap"
)

// TaskQueue schedules a unit of work to run after the current request has
// been answered. Fire and forget: there is no completion channel back to the
// caller.
type TaskQueue interface {
	Submit(task func())
}

// Runner is a channel-fed TaskQueue backed by a fixed pool of worker
// goroutines.
type Runner struct {
	tasks  chan func()
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewRunner starts workers goroutines draining a queue of the given size.
func NewRunner(workers, queueSize int, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := &Runner{
		tasks:  make(chan func(), queueSize),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		runner.wg.Add(1)
		go runner.work()
	}
	return runner
}

// Submit implements TaskQueue. Tasks submitted after Close are dropped with
// a log line rather than panicking the caller.
func (r *Runner) Submit(task func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn("task submitted after runner close, dropping")
		return
	}
	r.tasks <- task
}

// Close stops accepting tasks and waits for in-flight work to drain.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.tasks)
	r.wg.Wait()
}

func (r *Runner) work() {
	defer r.wg.Done()
	for task := range r.tasks {
		r.runOne(task)
	}
}

// runOne isolates each task so a panic fails the task, not the worker.
func (r *Runner) runOne(task func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("background task panicked", zap.Any("panic", recovered))
		}
	}()
	task()
}

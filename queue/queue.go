// Package queue is a bounded-concurrency FIFO work queue. Background
// refreshes are submitted fire-and-forget: callers keep no handle and
// consume no result.
package queue

import (
	"log/slog"
	"sync"
)

type TaskQueue struct {
	tasks     chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewTaskQueue starts workers goroutines draining a FIFO backlog of the
// given size. Enqueue blocks only when the backlog is full.
func NewTaskQueue(workers, backlog int, logger *slog.Logger) *TaskQueue {
	if workers < 1 {
		workers = 1
	}
	q := &TaskQueue{
		tasks:  make(chan func(), backlog),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

func (q *TaskQueue) work() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(task)
	}
}

func (q *TaskQueue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued task panicked", "panic", r)
		}
	}()
	task()
}

// Enqueue submits a task. Submission order is the execution order within
// the worker limit.
func (q *TaskQueue) Enqueue(task func()) {
	q.tasks <- task
}

// Close stops accepting tasks and waits for queued ones to finish.
func (q *TaskQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}

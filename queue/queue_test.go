package queue

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSingleWorkerRunsInOrder(t *testing.T) {
	q := NewTaskQueue(1, 16, testLogger())

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		q.Enqueue(func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, i)
		})
	}
	q.Close()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCloseWaitsForQueuedTasks(t *testing.T) {
	q := NewTaskQueue(4, 64, testLogger())

	var mu sync.Mutex
	done := 0
	for i := 0; i < 32; i++ {
		q.Enqueue(func() {
			mu.Lock()
			defer mu.Unlock()
			done++
		})
	}
	q.Close()
	assert.Equal(t, 32, done)

	// Close is idempotent.
	q.Close()
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	q := NewTaskQueue(1, 8, testLogger())

	ran := false
	q.Enqueue(func() { panic("boom") })
	q.Enqueue(func() { ran = true })
	q.Close()

	assert.True(t, ran, "worker must survive a panicking task")
}

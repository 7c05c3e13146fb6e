package locking

import (
	"errors"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/pkg/locktable"
)

// ErrQueueFull is returned when the per-file queue is at capacity.
var ErrQueueFull = errors.New("locking: blocking queue full")

// Queue holds per-file FIFO queues of parked lock batches.
//
// When a lock is released the engine walks the waiters of that file in
// arrival order and lets each retry.
//
// Thread Safety:
// All methods are safe for concurrent use.
type Queue struct {
	mu       sync.RWMutex
	queues   map[locktable.FileID][]*Waiter
	maxQueue int
}

// NewQueue creates a queue with the given per-file limit.
func NewQueue(maxPerFile int) *Queue {
	return &Queue{
		queues:   make(map[locktable.FileID][]*Waiter),
		maxQueue: maxPerFile,
	}
}

// Enqueue appends w to its file's queue.
func (q *Queue) Enqueue(w *Waiter) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.queues[w.File]
	if q.maxQueue > 0 && len(queue) >= q.maxQueue {
		return ErrQueueFull
	}

	w.QueuedAt = time.Now()
	q.queues[w.File] = append(queue, w)
	return nil
}

// Find returns the first waiter on file whose blocked entry matches the
// owner context, offset and length.
func (q *Queue) Find(file locktable.FileID, owner locktable.Owner, offset, length uint64) *Waiter {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, w := range q.queues[file] {
		if w.matches(owner, offset, length) {
			return w
		}
	}
	return nil
}

// Waiters returns a copy of the waiters for a file in FIFO order.
func (q *Queue) Waiters(file locktable.FileID) []*Waiter {
	q.mu.RLock()
	defer q.mu.RUnlock()

	queue := q.queues[file]
	if len(queue) == 0 {
		return nil
	}
	result := make([]*Waiter, len(queue))
	copy(result, queue)
	return result
}

// All returns a copy of every queued waiter.
func (q *Queue) All() []*Waiter {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var result []*Waiter
	for _, queue := range q.queues {
		result = append(result, queue...)
	}
	return result
}

// Remove removes w (matched by pointer).
func (q *Queue) Remove(w *Waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.queues[w.File]
	for i, x := range queue {
		if x == w {
			q.queues[w.File] = append(queue[:i], queue[i+1:]...)
			if len(q.queues[w.File]) == 0 {
				delete(q.queues, w.File)
			}
			return
		}
	}
}

// Len returns the total number of waiters across all files.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	total := 0
	for _, queue := range q.queues {
		total += len(queue)
	}
	return total
}

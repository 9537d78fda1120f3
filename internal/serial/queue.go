// Package serial provides the per-target operation queue: at most one
// operation in flight, strictly FIFO.
package serial

import "sync"

// Queue runs submitted operations one at a time in submission order.
// Concurrent attach/detach against the same remote target is unsafe, so
// every mutation of a target's attach state goes through its Queue.
type Queue struct {
	mu   sync.Mutex
	tail chan struct{} // closed when the most recently queued op finishes
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Do enqueues fn behind any operations already queued, blocks until its
// turn completes, and returns fn's error. Operations submitted from
// multiple goroutines execute in submission order.
func (q *Queue) Do(fn func() error) error {
	done := make(chan struct{})
	q.mu.Lock()
	prev := q.tail
	q.tail = done
	q.mu.Unlock()
	defer close(done)

	if prev != nil {
		<-prev
	}
	return fn()
}

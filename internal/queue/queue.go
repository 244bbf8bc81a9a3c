// Package queue provides the bounded event queue between connection workers and the engine.
package queue

import "sync"

// Queue is a bounded multi-producer single-consumer ring buffer.
// Push never blocks: when the buffer is full the oldest item is evicted.
type Queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	count    int
	capacity int
	closed   bool

	// Stats
	pushed  int64
	popped  int64
	dropped int64
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends item, evicting the oldest buffered item if the queue is full.
// Returns false only when the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.count == q.capacity {
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % q.capacity
		q.count--
		q.dropped++
	}

	tail := (q.head + q.count) % q.capacity
	q.buf[tail] = item
	q.count++
	q.pushed++
	return true
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.count == 0 {
		return zero, false
	}

	item := q.buf[q.head]
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.popped++
	return item, true
}

// Close rejects further pushes. Buffered items can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Dropped returns how many items were evicted to make room.
func (q *Queue[T]) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Stats returns lifetime push and pop totals.
func (q *Queue[T]) Stats() (pushed, popped int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed, q.popped
}

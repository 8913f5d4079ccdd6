// Package queue provides a bounded lock-free single-producer/single-consumer
// ring buffer.
package queue

import (
	"sync/atomic"
)

// DefaultCapacity is the queue size used between the trace source and the
// dispatcher.
const DefaultCapacity = 1000

const cacheLine = 64

// SPSC is a fixed-capacity FIFO ring for exactly one producer goroutine and
// exactly one consumer goroutine. Push and Pop never block and never
// allocate.
//
// The single-writer/single-reader discipline is not checked. Calling Push
// from two goroutines, or Pop from two goroutines, corrupts the queue.
type SPSC[T any] struct {
	buf  []T
	size uint64

	// head is the next slot to read; written only by the consumer.
	head atomic.Uint64
	_    [cacheLine - 8]byte

	// tail is the next slot to write; written only by the producer.
	tail atomic.Uint64
	_    [cacheLine - 8]byte

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// New creates a queue holding at most capacity values. A capacity below 1
// falls back to DefaultCapacity.
func New[T any](capacity int) *SPSC[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &SPSC[T]{
		buf:  make([]T, capacity),
		size: uint64(capacity),
	}
}

// Push appends v. It returns false and discards v when the queue is full.
// Producer side only.
func (q *SPSC[T]) Push(v T) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() >= q.size {
		q.dropped.Add(1)
		return false
	}
	q.buf[tail%q.size] = v
	// Publishing tail after the slot write makes the value visible to Pop.
	q.tail.Store(tail + 1)
	q.pushed.Add(1)
	return true
}

// Pop removes the oldest value. ok is false when the queue is empty.
// Consumer side only.
func (q *SPSC[T]) Pop() (v T, ok bool) {
	head := q.head.Load()
	if head == q.tail.Load() {
		return v, false
	}
	idx := head % q.size
	v = q.buf[idx]
	var zero T
	q.buf[idx] = zero
	q.head.Store(head + 1)
	return v, true
}

// Len returns the number of queued values. The result is a snapshot and may
// be stale by the time it is used.
func (q *SPSC[T]) Len() int {
	head := q.head.Load()
	return int(q.tail.Load() - head) //nolint:gosec // G115: bounded by size
}

// Cap returns the fixed capacity.
func (q *SPSC[T]) Cap() int {
	return int(q.size) //nolint:gosec // G115: set from an int
}

// Pushed returns the number of values accepted since creation.
func (q *SPSC[T]) Pushed() uint64 { return q.pushed.Load() }

// Dropped returns the number of values rejected because the queue was full.
func (q *SPSC[T]) Dropped() uint64 { return q.dropped.Load() }

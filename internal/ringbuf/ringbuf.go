// Package ringbuf provides a lock-free, single-producer single-consumer
// (SPSC) queue of ticks. Each instrument worker drains one Queue; the
// dispatcher is the only producer for it. Bounded depth with drop-newest on
// overflow is the engine's backpressure policy: already-applied buffer state
// is never invalidated, the newest tick is counted and discarded instead.
package ringbuf

import (
	"sync/atomic"

	"indicator-enginev1/internal/model"
)

// cacheLine is the typical x86-64 cache line size used for padding.
const cacheLine = 64

// Queue is a lock-free SPSC ring of Tick values.
// Size must be a power of two for fast bitwise modulo.
type Queue struct {
	buf  []model.Tick
	mask uint64

	// Separate cache lines to prevent false sharing between producer and consumer.
	_pad0 [cacheLine]byte
	head  atomic.Uint64 // written by producer
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // written by consumer
	_pad2 [cacheLine]byte

	// Dropped-push counter (atomic, for metrics)
	overflow atomic.Uint64
}

// New creates a queue. capacity is rounded up to the next power of two;
// minimum capacity is 2.
func New(capacity int) *Queue {
	c := nextPow2(capacity)
	if c < 2 {
		c = 2
	}
	return &Queue{
		buf:  make([]model.Tick, c),
		mask: uint64(c - 1),
	}
}

// Push appends a tick. Returns false if the queue is full (the tick is NOT
// written in that case — drop-newest). Non-blocking.
func (q *Queue) Push(t model.Tick) bool {
	head := q.head.Load()
	tail := q.tail.Load()

	if head-tail >= uint64(len(q.buf)) {
		q.overflow.Add(1)
		return false
	}

	q.buf[head&q.mask] = t
	q.head.Store(head + 1)
	return true
}

// Pop retrieves the next tick. Returns false if the queue is empty. Non-blocking.
func (q *Queue) Pop() (model.Tick, bool) {
	tail := q.tail.Load()
	head := q.head.Load()

	if tail >= head {
		return model.Tick{}, false
	}

	t := q.buf[tail&q.mask]
	q.tail.Store(tail + 1)
	return t, true
}

// Len returns the current number of queued ticks.
func (q *Queue) Len() int {
	return int(q.head.Load() - q.tail.Load())
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Overflow returns the total number of ticks dropped due to a full queue.
func (q *Queue) Overflow() uint64 {
	return q.overflow.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

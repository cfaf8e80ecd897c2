// Package window provides the per-instrument rolling history: a
// fixed-capacity FIFO of float64 values with O(1) append/evict.
//
// The buffer is exclusively owned by its instrument's dispatch worker and is
// never shared across goroutines. The steady-state indicator update path
// consumes only the value evicted by Push; Values() exists solely so an
// indicator added after warm-up can bootstrap from existing history.
package window

// DefaultCapacity is the rolling history depth used when none is configured.
const DefaultCapacity = 200

// Buffer is a fixed-capacity circular buffer of values in arrival order.
// Once full, each Push overwrites the oldest slot and returns the evicted
// value so dependent indicators can do exact-window removal accounting.
type Buffer struct {
	buf   []float64
	idx   int // next write position
	count int // total values pushed (not capped)
}

// New creates a Buffer with the given capacity. Capacity must be positive;
// non-positive values fall back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{buf: make([]float64, capacity)}
}

// Push appends v. If the buffer was already full it returns the value that
// was evicted to make room, with ok=true.
func (b *Buffer) Push(v float64) (evicted float64, ok bool) {
	if b.count >= len(b.buf) {
		evicted, ok = b.buf[b.idx], true
	}
	b.buf[b.idx] = v
	b.idx = (b.idx + 1) % len(b.buf)
	b.count++
	return evicted, ok
}

// Len returns the number of values currently held (≤ Cap).
func (b *Buffer) Len() int {
	if b.count < len(b.buf) {
		return b.count
	}
	return len(b.buf)
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// Full reports whether the buffer has reached capacity.
func (b *Buffer) Full() bool { return b.count >= len(b.buf) }

// Values returns the held values oldest → newest as a fresh slice.
// O(n); used only for indicator bootstrap, never on the tick hot path.
func (b *Buffer) Values() []float64 {
	n := b.Len()
	out := make([]float64, n)
	if !b.Full() {
		copy(out, b.buf[:n])
		return out
	}
	// Oldest value sits at the write cursor once the buffer has wrapped.
	m := copy(out, b.buf[b.idx:])
	copy(out[m:], b.buf[:b.idx])
	return out
}

// Reset empties the buffer for reuse.
func (b *Buffer) Reset() {
	b.idx = 0
	b.count = 0
	for i := range b.buf {
		b.buf[i] = 0
	}
}

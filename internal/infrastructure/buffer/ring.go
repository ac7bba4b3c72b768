// Package buffer provides a fixed-capacity FIFO ring buffer used to bound
// the in-memory audit and alert trails. Eviction of the oldest entry is O(1).
//
// The ring is not safe for concurrent use; owners guard it with their own
// mutex alongside any secondary indexes that must stay consistent with it.
package buffer

// Ring is a bounded FIFO buffer. When full, Push evicts the oldest element.
type Ring[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// NewRing creates a ring with the given capacity. Capacity must be positive.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("buffer: ring capacity must be positive")
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v. If the ring is full the oldest element is evicted and
// returned with evicted=true.
func (r *Ring[T]) Push(v T) (old T, evicted bool) {
	if r.size == len(r.items) {
		old = r.items[r.head]
		r.items[r.head] = v
		r.head = (r.head + 1) % len(r.items)
		return old, true
	}
	r.items[(r.head+r.size)%len(r.items)] = v
	r.size++
	return old, false
}

// Len returns the number of elements currently held.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// Snapshot returns the elements oldest-first as a fresh slice.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(r.head+i)%len(r.items)])
	}
	return out
}

// Do calls fn on each element oldest-first, stopping early if fn returns false.
func (r *Ring[T]) Do(fn func(T) bool) {
	for i := 0; i < r.size; i++ {
		if !fn(r.items[(r.head+i)%len(r.items)]) {
			return
		}
	}
}

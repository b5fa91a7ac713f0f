// Package ring provides a fixed-capacity, thread-safe ring buffer.
// When the buffer is full, the oldest entry is evicted to make room for
// new entries. It backs both the per-model latency sample buffers and
// the history time-series buffers.
package ring

import "sync"

// Buffer is a fixed-capacity ring buffer. All methods are safe for
// concurrent use.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	cap   int
	head  int // index of the oldest element
	count int // number of elements currently stored
}

// New creates a Buffer with the given capacity.
// Capacity must be at least 1. A buffer with capacity=1 holds exactly 1 entry.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		items: make([]T, capacity),
		cap:   capacity,
	}
}

// Add inserts an entry into the buffer. If the buffer is full, the oldest
// entry is overwritten.
func (b *Buffer[T]) Add(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	writePos := (b.head + b.count) % b.cap
	if b.count == b.cap {
		// Buffer is full; overwrite oldest and advance head.
		b.items[b.head] = v
		b.head = (b.head + 1) % b.cap
	} else {
		b.items[writePos] = v
		b.count++
	}
}

// List returns all entries in insertion order (oldest first).
func (b *Buffer[T]) List() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil
	}
	result := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		result[i] = b.items[(b.head+i)%b.cap]
	}
	return result
}

// Len returns the number of entries currently in the buffer.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the capacity of the buffer.
func (b *Buffer[T]) Cap() int {
	return b.cap
}

// Reset discards all entries, keeping the capacity.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

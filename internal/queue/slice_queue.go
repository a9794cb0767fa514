package queue

import "slices"

// sliceQueue implements the Queue interface using a slice.
type sliceQueue[T any] struct {
	items []T
}

var _ Queue[int] = (*sliceQueue[int])(nil)

// NewSliceQueue creates a new slice backed Queue.
func NewSliceQueue[T any](prealloc int) Queue[T] {
	return &sliceQueue[T]{items: make([]T, 0, prealloc)}
}

// Enqueue adds an item to the tail of the queue.
func (q *sliceQueue[T]) Enqueue(item T) {
	q.items = append(q.items, item)
}

// Dequeue removes and returns the item at the head of the queue.
func (q *sliceQueue[T]) Dequeue() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *sliceQueue[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	return q.items[0], true
}

// Tail returns the item at the tail of the queue without removing it.
func (q *sliceQueue[T]) Tail() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	return q.items[len(q.items)-1], true
}

// Index returns the position of the first item matching fn, or -1.
func (q *sliceQueue[T]) Index(fn func(T) bool) int {
	return slices.IndexFunc(q.items, fn)
}

// DropFront removes the first n items.
func (q *sliceQueue[T]) DropFront(n int) {
	if n <= 0 {
		return
	}
	if n >= len(q.items) {
		q.Reset()
		return
	}
	clear(q.items[:n])
	q.items = q.items[n:]
}

// RemoveFunc removes every item matching fn and returns the number removed.
func (q *sliceQueue[T]) RemoveFunc(fn func(T) bool) int {
	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, fn)

	return before - len(q.items)
}

// Items returns a copy of the queued items.
func (q *sliceQueue[T]) Items() []T {
	return slices.Clone(q.items)
}

// Reset resets the queue to an empty state.
func (q *sliceQueue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0] // Reslice to 0 length to reuse the underlying array
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *sliceQueue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// Length returns the number of items in the queue.
func (q *sliceQueue[T]) Length() int {
	return len(q.items)
}

// Package queue provides the ordered containers used for SMP request bookkeeping.
package queue

// Queue defines the interface for an ordered FIFO of T.
//
// Implementations are not safe for concurrent use; callers guard them with their own lock.
type Queue[T any] interface {
	// Enqueue adds an item to the tail of the queue.
	Enqueue(item T)
	// Dequeue removes and returns the item at the head of the queue.
	// ok is false if the queue is empty.
	Dequeue() (item T, ok bool)
	// Peek returns the item at the head of the queue without removing it.
	Peek() (item T, ok bool)
	// Tail returns the item at the tail of the queue without removing it.
	Tail() (item T, ok bool)
	// Index returns the position of the first item matching fn, or -1.
	Index(fn func(T) bool) int
	// DropFront removes the first n items. n larger than Length empties the queue.
	DropFront(n int)
	// RemoveFunc removes every item matching fn and returns the number removed.
	RemoveFunc(fn func(T) bool) int
	// Items returns a copy of the queued items in FIFO order.
	Items() []T
	// Reset to an empty queue
	Reset()
	// IsEmpty returns true if the queue is empty, false otherwise.
	IsEmpty() bool
	// Length returns the number of items in the queue.
	Length() int
}

package smp

import (
	"cmp"
	"maps"
	"slices"
	"sync"

	"github.com/arloliu/go-smp/internal/queue"
	"github.com/arloliu/go-smp/logger"
)

// ReorderBuffer collects results that may arrive in any order and releases them in the order
// their keys were registered.
//
// Each outstanding request registers its key with EnqueueExpectation. Results are passed to
// Received as they arrive; whenever Received returns true the owner calls Deliver, which
// hands over every buffered result unless an earlier registered key is still missing.
//
// All methods are safe for concurrent use, they serialize on one mutex.
type ReorderBuffer[K comparable, V any] struct {
	mu         sync.Mutex
	less       func(a, b K) bool
	expected   queue.Queue[K]
	outOfOrder map[K]struct{}
	buffer     map[K]V
	logger     logger.Logger
}

// NewReorderBuffer creates a ReorderBuffer that orders keys with less.
//
// less decides which registered keys an early arrival overtook, and the order in which
// simultaneously deliverable results are released.
func NewReorderBuffer[K comparable, V any](less func(a, b K) bool) *ReorderBuffer[K, V] {
	return &ReorderBuffer[K, V]{
		less:       less,
		expected:   queue.NewSliceQueue[K](8),
		outOfOrder: make(map[K]struct{}),
		buffer:     make(map[K]V),
	}
}

// NewOrderedReorderBuffer creates a ReorderBuffer using the natural ordering of K.
func NewOrderedReorderBuffer[K cmp.Ordered, V any]() *ReorderBuffer[K, V] {
	return NewReorderBuffer[K, V](cmp.Less[K])
}

// SetLogger sets an optional logger for out-of-order arrivals. nil disables logging.
func (b *ReorderBuffer[K, V]) SetLogger(l logger.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger = l
}

// EnqueueExpectation registers key as awaiting a result.
//
// Keys must be registered in the order the corresponding requests are dispatched.
func (b *ReorderBuffer[K, V]) EnqueueExpectation(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expected.Enqueue(key)
}

// Received stores the result value for key.
//
// It returns true when the caller should attempt delivery: key was the oldest expectation, or
// it closed a gap left by an earlier early arrival. It returns false when key overtook older
// expectations; those keys are then tracked as out of order until they arrive.
//
// A key that is neither expected nor out of order yields a *KeyError matching ErrInvalidKey,
// and additionally ErrEmpty when nothing is pending at all. The value is dropped in that case.
func (b *ReorderBuffer[K, V]) Received(value V, key K) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if head, ok := b.expected.Peek(); ok && head == key {
		b.buffer[key] = value
		b.expected.Dequeue()

		return true, nil
	}

	switch idx := b.expected.Index(func(k K) bool { return k == key }); {
	case idx > 0:
		b.buffer[key] = value
		overtaken := 0
		for _, k := range b.expected.Items() {
			if b.less(k, key) {
				b.outOfOrder[k] = struct{}{}
				overtaken++
			}
		}
		b.expected.RemoveFunc(func(k K) bool { return k == key || b.less(k, key) })

		if b.logger != nil {
			b.logger.Debug("out-of-order result buffered", "key", key, "overtaken", overtaken)
		}

		return false, nil

	default:
		if _, ok := b.outOfOrder[key]; ok {
			b.buffer[key] = value
			delete(b.outOfOrder, key)

			return true, nil
		}

		return false, &KeyError{
			Key:   key,
			Err:   ErrInvalidKey,
			empty: b.expected.IsEmpty() && len(b.outOfOrder) == 0,
		}
	}
}

// Deliver hands every buffered result to fn in ascending key order and removes it.
//
// Nothing is delivered while any out-of-order key is still missing. fn is called with the
// buffer lock held, it must not call back into the buffer and should only hand the result
// off, e.g. to an executor.
func (b *ReorderBuffer[K, V]) Deliver(fn func(key K, value V)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.outOfOrder) > 0 {
		return nil
	}

	keys := slices.SortedFunc(maps.Keys(b.buffer), b.compare)
	for _, key := range keys {
		value, ok := b.buffer[key]
		if !ok {
			return &KeyError{Key: key, Err: ErrNoValueForKey}
		}
		delete(b.buffer, key)
		fn(key, value)
	}

	return nil
}

// Pending returns the number of registered expectations still awaiting their result in order.
func (b *ReorderBuffer[K, V]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.expected.Length()
}

// OutOfOrder returns the number of overtaken keys still missing.
func (b *ReorderBuffer[K, V]) OutOfOrder() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.outOfOrder)
}

// Buffered returns the number of results awaiting delivery.
func (b *ReorderBuffer[K, V]) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.buffer)
}

func (b *ReorderBuffer[K, V]) compare(x, y K) int {
	switch {
	case b.less(x, y):
		return -1
	case b.less(y, x):
		return 1
	default:
		return 0
	}
}

package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type offsetItem struct {
	offset uint64
}

func TestSliceQueue(t *testing.T) {
	assert := assert.New(t)
	t.Run("Empty Queue", func(t *testing.T) {
		q := NewSliceQueue[*offsetItem](1)

		assert.True(q.IsEmpty())
		assert.Equal(0, q.Length())
		item, ok := q.Dequeue()
		assert.False(ok)
		assert.Nil(item)
		_, ok = q.Peek()
		assert.False(ok)
		_, ok = q.Tail()
		assert.False(ok)
	})

	t.Run("Enqueue and Dequeue", func(t *testing.T) {
		q := NewSliceQueue[*offsetItem](1)

		item1 := &offsetItem{100}
		q.Enqueue(item1)
		assert.False(q.IsEmpty())
		assert.Equal(1, q.Length())

		item2 := &offsetItem{200}
		q.Enqueue(item2)
		assert.Equal(2, q.Length())

		got, ok := q.Dequeue()
		assert.True(ok)
		assert.Same(item1, got)
		assert.Equal(1, q.Length())

		got, ok = q.Dequeue()
		assert.True(ok)
		assert.Same(item2, got)
		assert.True(q.IsEmpty())

		_, ok = q.Dequeue()
		assert.False(ok)
	})

	t.Run("Peek and Tail", func(t *testing.T) {
		q := NewSliceQueue[int](1)

		q.Enqueue(1)
		head, _ := q.Peek()
		tail, _ := q.Tail()
		assert.Equal(1, head)
		assert.Equal(1, tail)

		q.Enqueue(2)
		head, _ = q.Peek()
		tail, _ = q.Tail()
		assert.Equal(1, head)
		assert.Equal(2, tail)
		assert.Equal(2, q.Length()) // Length should not change after peek
	})

	t.Run("Index and DropFront", func(t *testing.T) {
		q := NewSliceQueue[int](4)
		for _, v := range []int{10, 11, 12, 13} {
			q.Enqueue(v)
		}

		assert.Equal(2, q.Index(func(v int) bool { return v == 12 }))
		assert.Equal(-1, q.Index(func(v int) bool { return v == 99 }))

		q.DropFront(3)
		assert.Equal([]int{13}, q.Items())

		q.DropFront(0)
		assert.Equal(1, q.Length())

		q.DropFront(5)
		assert.True(q.IsEmpty())
	})

	t.Run("RemoveFunc", func(t *testing.T) {
		q := NewSliceQueue[int](4)
		for _, v := range []int{100, 200, 300, 150} {
			q.Enqueue(v)
		}

		n := q.RemoveFunc(func(v int) bool { return v <= 200 })
		assert.Equal(3, n)
		assert.Equal([]int{300}, q.Items())
	})

	t.Run("Items is a copy", func(t *testing.T) {
		q := NewSliceQueue[int](2)
		q.Enqueue(1)
		items := q.Items()
		items[0] = 42

		head, _ := q.Peek()
		assert.Equal(1, head)

		q.Reset()
		assert.True(q.IsEmpty())
	})

	t.Run("Concurrency", func(t *testing.T) {
		var mu sync.Mutex
		q := NewSliceQueue[int](1)

		var wg sync.WaitGroup
		for i := 0; i < 1000; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				mu.Lock()
				q.Enqueue(i)
				mu.Unlock()
			}(i)
		}
		wg.Wait()

		assert.Equal(1000, q.Length())

		wg.Add(1000)
		for i := 0; i < 1000; i++ {
			go func() {
				defer wg.Done()
				mu.Lock()
				q.Dequeue()
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.True(q.IsEmpty())
	})
}

func BenchmarkSliceQueue_100(b *testing.B) {
	q := NewSliceQueue[int](100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < 100; j++ {
			q.Enqueue(j)
		}
		for !q.IsEmpty() {
			q.Dequeue()
		}
	}
}

package smp

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-smp/logger"
)

// permutations returns every ordering of items.
func permutations[T any](items []T) [][]T {
	if len(items) <= 1 {
		return [][]T{append([]T(nil), items...)}
	}

	var result [][]T
	for i := range items {
		rest := make([]T, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, p := range permutations(rest) {
			result = append(result, append([]T{items[i]}, p...))
		}
	}

	return result
}

// feed passes every key of arrival to buf, delivering whenever Received asks for it, and
// returns the delivered values in order.
func feed[K comparable](t *testing.T, buf *ReorderBuffer[K, string], arrival []K) []string {
	t.Helper()

	var delivered []string
	for _, key := range arrival {
		ok, err := buf.Received(fmt.Sprint(key), key)
		require.NoError(t, err)
		if ok {
			require.NoError(t, buf.Deliver(func(k K, v string) {
				delivered = append(delivered, v)
			}))
		}
	}

	return delivered
}

func TestReorderBuffer_FIFOOverAllPermutations(t *testing.T) {
	keys := []int{1, 2, 3, 4, 5}
	want := []string{"1", "2", "3", "4", "5"}

	for _, arrival := range permutations(keys) {
		t.Run(fmt.Sprint(arrival), func(t *testing.T) {
			buf := NewOrderedReorderBuffer[int, string]()
			for _, k := range keys {
				buf.EnqueueExpectation(k)
			}

			assert.Equal(t, want, feed(t, buf, arrival))
			assert.Zero(t, buf.Pending())
			assert.Zero(t, buf.OutOfOrder())
			assert.Zero(t, buf.Buffered())
		})
	}
}

func TestReorderBuffer_FIFOAcrossWraparound(t *testing.T) {
	keys := []uint8{252, 253, 254, 255, 0, 1, 2}
	want := make([]string, 0, len(keys))
	for _, k := range keys {
		want = append(want, fmt.Sprint(k))
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		arrival := append([]uint8(nil), keys...)
		rng.Shuffle(len(arrival), func(i, j int) { arrival[i], arrival[j] = arrival[j], arrival[i] })

		buf := NewReorderBuffer[uint8, string](SeqLess)
		for _, k := range keys {
			buf.EnqueueExpectation(k)
		}

		assert.Equal(t, want, feed(t, buf, arrival), "arrival %v", arrival)
	}
}

func TestReorderBuffer_NaturalOrderAtWraparound(t *testing.T) {
	// with natural ordering 255 doesn't precede 0, so results straddling the wrap come out
	// in numeric order
	buf := NewOrderedReorderBuffer[uint8, string]()
	for _, k := range []uint8{255, 0, 1} {
		buf.EnqueueExpectation(k)
	}

	assert.Equal(t, []string{"0", "1", "255"}, feed(t, buf, []uint8{1, 255, 0}))
}

func TestReorderBuffer_NoPrematureDelivery(t *testing.T) {
	assert := assert.New(t)

	buf := NewOrderedReorderBuffer[int, string]()
	for _, k := range []int{1, 2, 3} {
		buf.EnqueueExpectation(k)
	}

	var delivered []string
	collect := func(_ int, v string) { delivered = append(delivered, v) }

	ok, err := buf.Received("one", 1)
	assert.NoError(err)
	assert.True(ok)

	ok, err = buf.Received("three", 3)
	assert.NoError(err)
	assert.False(ok)
	assert.Equal(1, buf.OutOfOrder())

	assert.NoError(buf.Deliver(collect))
	assert.Empty(delivered)
	assert.Equal(2, buf.Buffered())

	ok, err = buf.Received("two", 2)
	assert.NoError(err)
	assert.True(ok)

	assert.NoError(buf.Deliver(collect))
	assert.Equal([]string{"one", "two", "three"}, delivered)
}

func TestReorderBuffer_HeadDeliveredEarly(t *testing.T) {
	buf := NewOrderedReorderBuffer[int, string]()
	for _, k := range []int{1, 2, 3} {
		buf.EnqueueExpectation(k)
	}

	var delivered []string
	collect := func(_ int, v string) { delivered = append(delivered, v) }

	ok, err := buf.Received("one", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, buf.Deliver(collect))
	assert.Equal(t, []string{"one"}, delivered)

	ok, err = buf.Received("three", 3)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = buf.Received("two", 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, buf.Deliver(collect))
	assert.Equal(t, []string{"one", "two", "three"}, delivered)
}

func TestReorderBuffer_IdempotentConsumption(t *testing.T) {
	buf := NewOrderedReorderBuffer[int, string]()
	buf.EnqueueExpectation(7)
	buf.EnqueueExpectation(8)

	ok, err := buf.Received("seven", 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, buf.Deliver(func(int, string) {}))

	// 8 is still pending, so the error is an invalid key but not an empty buffer
	_, err = buf.Received("again", 7)
	require.ErrorIs(t, err, ErrInvalidKey)
	assert.NotErrorIs(t, err, ErrEmpty)

	var keyErr *KeyError
	require.ErrorAs(t, err, &keyErr)
	assert.Equal(t, 7, keyErr.Key)

	ok, err = buf.Received("eight", 8)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, buf.Deliver(func(int, string) {}))

	_, err = buf.Received("again", 8)
	require.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Zero(t, buf.Buffered())
}

func TestReorderBuffer_Empty(t *testing.T) {
	buf := NewOrderedReorderBuffer[int, string]()

	ok, err := buf.Received("value", 1)
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrEmpty)
	require.ErrorIs(t, err, ErrInvalidKey)
	assert.Contains(t, err.Error(), "invalid key")
	assert.Zero(t, buf.Buffered())
}

func TestReorderBuffer_UnknownKeyWhileOutOfOrder(t *testing.T) {
	buf := NewOrderedReorderBuffer[int, string]()
	for _, k := range []int{1, 2, 3} {
		buf.EnqueueExpectation(k)
	}

	ok, err := buf.Received("three", 3)
	require.NoError(t, err)
	require.False(t, ok)
	assert.Zero(t, buf.Pending())
	assert.Equal(t, 2, buf.OutOfOrder())

	_, err = buf.Received("ghost", 4)
	require.ErrorIs(t, err, ErrInvalidKey)
	assert.NotErrorIs(t, err, ErrEmpty)
}

func TestReorderBuffer_AscendingWithinDeliver(t *testing.T) {
	buf := NewOrderedReorderBuffer[int, int]()
	for k := 1; k <= 4; k++ {
		buf.EnqueueExpectation(k)
	}

	ok, err := buf.Received(400, 4)
	require.NoError(t, err)
	require.False(t, ok)

	// 3 and 2 close gaps, but 1 is still missing
	for _, k := range []int{3, 2} {
		ok, err = buf.Received(k*100, k)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, buf.Deliver(func(int, int) { t.Fatal("delivered across a gap") }))
	}

	ok, err = buf.Received(100, 1)
	require.NoError(t, err)
	require.True(t, ok)

	var keys []int
	require.NoError(t, buf.Deliver(func(k, _ int) { keys = append(keys, k) }))
	assert.Equal(t, []int{1, 2, 3, 4}, keys)
}

func TestReorderBuffer_Logger(t *testing.T) {
	buf := NewOrderedReorderBuffer[int, string]()
	buf.SetLogger(logger.NewFromSlog(slogt.New(t)))
	buf.EnqueueExpectation(1)
	buf.EnqueueExpectation(2)

	ok, err := buf.Received("two", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	buf.SetLogger(nil)
	ok, err = buf.Received("one", 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReorderBuffer_Concurrent(t *testing.T) {
	const n = 64

	buf := NewReorderBuffer[uint8, int](SeqLess)
	gen := NewSequenceGeneratorAt(200)
	seqs := make([]uint8, n)
	for i := range seqs {
		seqs[i] = gen.Next()
		buf.EnqueueExpectation(seqs[i])
	}

	var (
		mu        sync.Mutex
		delivered []int
		wg        sync.WaitGroup
	)
	for i, seq := range seqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := buf.Received(i, seq)
			assert.NoError(t, err)
			if !ok {
				return
			}
			assert.NoError(t, buf.Deliver(func(_ uint8, v int) {
				mu.Lock()
				delivered = append(delivered, v)
				mu.Unlock()
			}))
		}()
	}
	wg.Wait()

	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, delivered)
}

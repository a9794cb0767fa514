package smp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceGenerator_Wraparound(t *testing.T) {
	gen := NewSequenceGenerator()

	seen := make(map[uint8]int, 256)
	first := gen.Next()
	seen[first]++
	for i := 1; i < 256; i++ {
		seen[gen.Next()]++
	}

	assert.Len(t, seen, 256)
	for v, n := range seen {
		assert.Equal(t, 1, n, "value %d", v)
	}

	// the 257th value repeats the first one
	assert.Equal(t, first, gen.Next())
}

func TestSequenceGenerator_At(t *testing.T) {
	gen := NewSequenceGeneratorAt(253)

	got := make([]uint8, 0, 6)
	for i := 0; i < 6; i++ {
		got = append(got, gen.Next())
	}

	assert.Equal(t, []uint8{253, 254, 255, 0, 1, 2}, got)
	assert.Equal(t, uint8(3), gen.Peek())
}

func TestSequenceGenerator_Concurrent(t *testing.T) {
	gen := NewSequenceGeneratorAt(0)

	var (
		mu     sync.Mutex
		counts [256]int
		wg     sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := [256]int{}
			for j := 0; j < 128; j++ {
				local[gen.Next()]++
			}
			mu.Lock()
			for v, n := range local {
				counts[v] += n
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// 1024 values over a 256 value space: every value exactly four times
	for v, n := range counts {
		assert.Equal(t, 4, n, "value %d", v)
	}
}

func TestSeqLess(t *testing.T) {
	tests := []struct {
		a, b uint8
		less bool
	}{
		{10, 11, true},
		{11, 10, false},
		{10, 10, false},
		{255, 0, true},
		{0, 255, false},
		{250, 3, true},
		{3, 250, false},
		{0, 127, true},
		{0, 129, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.less, SeqLess(tt.a, tt.b), "SeqLess(%d, %d)", tt.a, tt.b)
	}
}

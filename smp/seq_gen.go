package smp

import (
	"crypto/rand"
	"io"
	"sync/atomic"
)

// SequenceGenerator issues wrapping 8-bit SMP sequence numbers.
//
// The counter starts at a random value so consecutive sessions with the same device
// are unlikely to reuse recent sequence numbers. It is safe for concurrent use.
type SequenceGenerator struct {
	n atomic.Uint32
}

// NewSequenceGenerator returns a generator starting at a random value in [0, 255].
func NewSequenceGenerator() *SequenceGenerator {
	g := &SequenceGenerator{}
	var buf [1]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return g
	}
	g.n.Store(uint32(buf[0]))

	return g
}

// NewSequenceGeneratorAt returns a generator whose first Next returns start.
func NewSequenceGeneratorAt(start uint8) *SequenceGenerator {
	g := &SequenceGenerator{}
	g.n.Store(uint32(start))

	return g
}

// Next returns the current sequence number and advances the counter, wrapping 255 to 0.
func (g *SequenceGenerator) Next() uint8 {
	// 2^32 is a multiple of 256, so the truncation stays consistent across the uint32 wrap.
	return uint8(g.n.Add(1) - 1)
}

// Peek returns the sequence number the next call to Next will return.
func (g *SequenceGenerator) Peek() uint8 {
	return uint8(g.n.Load())
}

// SeqLess reports whether sequence number a precedes b in serial number arithmetic.
//
// a precedes b when b is reached from a by advancing less than 128 steps, so 255 precedes 0.
// The relation is only meaningful for numbers less than 128 apart, which always holds for the
// sequence numbers in flight on one connection.
func SeqLess(a, b uint8) bool {
	return int8(a-b) < 0
}

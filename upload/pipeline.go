package upload

import (
	"fmt"

	"github.com/arloliu/go-smp/internal/queue"
)

// State is the state of a Pipeline.
type State uint8

const (
	// StateIdle means nothing is outstanding and more data remains to be sent.
	StateIdle State = iota
	// StateFilling means chunks are being issued up to the window depth.
	StateFilling
	// StateDraining means chunks are outstanding and the window waits for acknowledgments.
	StateDraining
	// StateResyncing means the device reported an unexpected offset and stale chunks are
	// still outstanding. No new chunks are issued until they drained.
	StateResyncing
	// StateComplete means the device confirmed the whole image.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFilling:
		return "filling"
	case StateDraining:
		return "draining"
	case StateResyncing:
		return "resyncing"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// SendFunc issues the chunk starting at offset and returns the offset the device is expected
// to report once it stored the chunk, i.e. offset plus the chunk length.
type SendFunc func(offset uint64) uint64

// Pipeline is the sliding window of concurrently outstanding chunks of one transfer.
//
// It tracks the offsets the device is expected to report back and the high-water mark of data
// the device confirmed. Pipeline has no lock; it belongs to one transfer session which
// serializes access.
type Pipeline struct {
	depth              int
	bufferSize         int
	imageSize          uint64
	lastReceivedOffset uint64
	expected           queue.Queue[uint64]
	state              State
}

// NewPipeline creates a pipeline allowing depth outstanding chunks. depth below 1 is raised
// to 1. bufferSize is the chunk size hint of the transfer.
func NewPipeline(depth, bufferSize int) *Pipeline {
	if depth < 1 {
		depth = 1
	}

	return &Pipeline{
		depth:      depth,
		bufferSize: bufferSize,
		expected:   queue.NewSliceQueue[uint64](depth),
	}
}

// Send issues chunks while fewer than depth are outstanding and data remains below imageSize.
//
// Each chunk starts at the current frontier: the last outstanding expected offset, or the last
// received offset when nothing is outstanding. Send returns the number of chunks issued.
// Nothing is issued while the pipeline is resyncing.
func (p *Pipeline) Send(imageSize uint64, sendFrom SendFunc) int {
	p.imageSize = imageSize
	if p.state == StateResyncing && !p.expected.IsEmpty() {
		return 0
	}

	issued := 0
	for p.expected.Length() < p.depth {
		frontier := p.frontier()
		if frontier >= imageSize {
			break
		}

		p.state = StateFilling
		p.expected.Enqueue(sendFrom(frontier))
		issued++
	}
	p.settle()

	return issued
}

// Received reconciles an offset reported by the device.
//
// An expected offset advances the high-water mark. Any other offset is authoritative: the
// high-water mark is set to it and the oldest outstanding chunk is dropped as stale. In both
// cases every outstanding offset at or below the reported one is dropped.
func (p *Pipeline) Received(offset uint64) {
	mismatch := p.expected.Index(func(o uint64) bool { return o == offset }) < 0
	if mismatch {
		p.lastReceivedOffset = offset
		p.expected.DropFront(1)
	} else {
		p.lastReceivedOffset = max(p.lastReceivedOffset, offset)
	}
	p.expected.RemoveFunc(func(o uint64) bool { return o <= offset })

	if !p.expected.IsEmpty() && (mismatch || p.state == StateResyncing) {
		p.state = StateResyncing
		return
	}
	p.settle()
}

// AllPacketsReceived reports whether no chunk is outstanding.
func (p *Pipeline) AllPacketsReceived() bool {
	return p.expected.IsEmpty()
}

// LastReceivedOffset returns the high-water mark confirmed by the device.
func (p *Pipeline) LastReceivedOffset() uint64 {
	return p.lastReceivedOffset
}

// Outstanding returns the expected return offsets of the chunks in flight, oldest first.
func (p *Pipeline) Outstanding() []uint64 {
	return p.expected.Items()
}

// State returns the current state.
func (p *Pipeline) State() State {
	return p.state
}

// Depth returns the window depth.
func (p *Pipeline) Depth() int {
	return p.depth
}

// BufferSize returns the chunk size hint.
func (p *Pipeline) BufferSize() int {
	return p.bufferSize
}

// Reset prepares the pipeline for the next transfer.
func (p *Pipeline) Reset() {
	p.expected.Reset()
	p.imageSize = 0
	p.lastReceivedOffset = 0
	p.state = StateIdle
}

func (p *Pipeline) frontier() uint64 {
	if last, ok := p.expected.Tail(); ok {
		return last
	}

	return p.lastReceivedOffset
}

func (p *Pipeline) settle() {
	switch {
	case !p.expected.IsEmpty():
		p.state = StateDraining
	case p.imageSize > 0 && p.lastReceivedOffset >= p.imageSize:
		p.state = StateComplete
	default:
		p.state = StateIdle
	}
}

// Package coverage implements the AFL-style edge coverage map: a fixed
// 64 KiB trace/virgin bitmap pair with hit-count bucketing and
// word-wise new-coverage detection.
package coverage

import (
	"crypto/sha256"
	"encoding/binary"
)

// MapSize is the fixed edge-bitmap size, in bytes. 64 KiB fits in L2 on
// commodity hardware and keeps edge-id collisions rare for realistic
// targets while staying cheap to diff word-wise.
const MapSize = 65536

// wordCount is MapSize viewed as 64-bit words for the has-new-coverage
// fast path.
const wordCount = MapSize / 8

// Map is a single driver's private coverage state: per-run trace bits
// and the globally-accumulated virgin map. It is never shared across
// goroutines; each Fuzz Driver owns exactly one.
type Map struct {
	trace     [MapSize]byte
	virgin    [MapSize]byte
	prevBlock uint16
}

// NewMap returns a Map with the virgin bitmap fully set (0xFF
// everywhere — nothing has been observed yet).
func NewMap() *Map {
	m := &Map{}
	for i := range m.virgin {
		m.virgin[i] = 0xFF
	}
	return m
}

// Reset zeroes the trace array and the edge-hashing cursor. Called at
// the start of every execution; the virgin map is untouched.
func (m *Map) Reset() {
	for i := range m.trace {
		m.trace[i] = 0
	}
	m.prevBlock = 0
}

// RecordBlock registers a visited basic block, forming an edge with the
// previously visited block. The right shift on prevBlock is essential:
// without it, edges A->B and B->A hash identically.
func (m *Map) RecordBlock(blockID uint16) {
	edge := blockID ^ m.prevBlock
	idx := int(edge) % MapSize
	if m.trace[idx] < 255 {
		m.trace[idx]++
	}
	m.prevBlock = blockID >> 1
}

// bucketBounds holds the representative byte of each of the nine AFL
// buckets, indexed by the class bucketOf returns.
var bucketBounds = [...]byte{0, 1, 2, 3, 4, 8, 16, 32, 128}

func bucketOf(count byte) byte {
	switch {
	case count == 0:
		return 0
	case count == 1:
		return 1
	case count == 2:
		return 2
	case count == 3:
		return 3
	case count <= 7:
		return 4
	case count <= 15:
		return 5
	case count <= 31:
		return 6
	case count <= 127:
		return 7
	default:
		return 8
	}
}

// bucketedByte re-renders a raw count as the representative value of
// its bucket, so two counts in the same class compare byte-identical.
func bucketedByte(count byte) byte {
	return bucketBounds[bucketOf(count)]
}

// bucketedTrace returns the trace array after bucketing, without
// mutating m.trace.
func (m *Map) bucketedTrace() [MapSize]byte {
	var out [MapSize]byte
	for i, c := range m.trace {
		if c != 0 {
			out[i] = bucketedByte(c)
		}
	}
	return out
}

// HasNewCoverage reports whether, after bucketing, any trace bit is
// also set in the virgin map. Implemented as a word-wise uint64
// comparison per the single most important micro-optimization noted
// for this design: byte-by-byte bitmap comparison is replaced with
// (trace_word & virgin_word) != 0 over MapSize/8 words.
func (m *Map) HasNewCoverage() bool {
	bucketed := m.bucketedTrace()
	for w := 0; w < wordCount; w++ {
		off := w * 8
		traceWord := binary.LittleEndian.Uint64(bucketed[off : off+8])
		if traceWord == 0 {
			continue
		}
		virginWord := binary.LittleEndian.Uint64(m.virgin[off : off+8])
		if traceWord&virginWord != 0 {
			return true
		}
	}
	return false
}

// Promote clears every virgin bit also present in the bucketed trace
// and returns the number of newly cleared bits. The virgin map only
// ever loses bits: this is the monotonicity invariant callers rely on.
func (m *Map) Promote() (newEdges int) {
	bucketed := m.bucketedTrace()
	for i, tb := range bucketed {
		if tb == 0 {
			continue
		}
		cleared := m.virgin[i] & tb
		if cleared != 0 {
			newEdges += popcount(cleared)
			m.virgin[i] &^= tb
		}
	}
	return newEdges
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

// Digest returns a stable 64-bit hash of the bucketed trace, used as
// the coverage_hash recorded on newly admitted corpus entries.
func (m *Map) Digest() uint64 {
	bucketed := m.bucketedTrace()
	sum := sha256.Sum256(bucketed[:])
	return binary.LittleEndian.Uint64(sum[:8])
}

// VirginPopcount returns the total number of still-unseen bits, mostly
// useful for tests asserting monotonicity.
func (m *Map) VirginPopcount() int {
	n := 0
	for _, b := range m.virgin {
		n += popcount(b)
	}
	return n
}

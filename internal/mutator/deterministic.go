package mutator

// Deterministic stage: bit flip walks, byte flip walks, arithmetic, and
// interesting-value overwrites. Each call draws one position/operation
// pair uniformly; across many driver iterations this statistically
// covers the full walk over the input without the engine needing to
// keep pass-state between calls.

var interesting8 = []int{-128, -1, 0, 1, 16, 32, 64, 100, 127}
var interesting16 = []int{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
var interesting32 = []int{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}

func mutateDeterministic(input []byte) []byte {
	if len(input) == 0 {
		return input
	}
	out := append([]byte(nil), input...)

	switch secureInt(4) {
	case 0:
		bitFlipWalk(out)
	case 1:
		byteFlipWalk(out)
	case 2:
		arithmeticWalk(out)
	default:
		interestingValueWalk(out)
	}
	return out
}

// bitFlipWalk flips 1, 2, or 4 consecutive bits starting at a random
// bit offset.
func bitFlipWalk(buf []byte) {
	widths := []int{1, 2, 4}
	width := widths[secureInt(len(widths))]
	bitPos := secureInt(len(buf) * 8)
	for i := 0; i < width; i++ {
		p := bitPos + i
		byteIdx := p / 8
		if byteIdx >= len(buf) {
			break
		}
		bitIdx := uint(p % 8)
		buf[byteIdx] ^= 1 << bitIdx
	}
}

// byteFlipWalk XORs 0xFF over 1, 2, or 4 consecutive bytes at a random
// byte offset.
func byteFlipWalk(buf []byte) {
	widths := []int{1, 2, 4}
	width := widths[secureInt(len(widths))]
	if width > len(buf) {
		width = len(buf)
	}
	pos := secureInt(len(buf) - width + 1)
	for i := 0; i < width; i++ {
		buf[pos+i] ^= 0xFF
	}
}

// arithmeticWalk adds a small delta to the little-endian integer at a
// random position and width, wrapping within the width's range.
func arithmeticWalk(buf []byte) {
	width := pickWidth(len(buf))
	if width == 0 {
		return
	}
	pos := secureInt(len(buf) - width + 1)
	delta := secureInt(70) - 35 // [-35, 34]
	if delta >= 0 {
		delta++ // skip 0 -> [-35,-1] U [1,35]
	}
	v := readLE(buf, pos, width)
	v = wrapWidth(v+int64(delta), width)
	writeLE(buf, pos, width, v)
}

// interestingValueWalk overwrites the integer at a random position and
// width with a value from that width's interesting set.
func interestingValueWalk(buf []byte) {
	width := pickWidth(len(buf))
	if width == 0 {
		return
	}
	pos := secureInt(len(buf) - width + 1)

	var set []int
	switch width {
	case 1:
		set = interesting8
	case 2:
		set = interesting16
	default:
		set = interesting32
	}
	v := set[secureInt(len(set))]
	writeLE(buf, pos, width, wrapWidth(int64(v), width))
}

func pickWidth(n int) int {
	var candidates []int
	for _, w := range []int{1, 2, 4} {
		if w <= n {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return 0
	}
	return candidates[secureInt(len(candidates))]
}

func readLE(buf []byte, pos, width int) int64 {
	var v int64
	for i := 0; i < width; i++ {
		v |= int64(buf[pos+i]) << (8 * i)
	}
	return v
}

func writeLE(buf []byte, pos, width int, v int64) {
	for i := 0; i < width; i++ {
		buf[pos+i] = byte(v >> (8 * i))
	}
}

// wrapWidth wraps v into [0, 2^(8*width)) two's-complement storage.
func wrapWidth(v int64, width int) int64 {
	mask := int64(1)<<(8*uint(width)) - 1
	return v & mask
}

package mutator

import (
	"bytes"
	"testing"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

func TestDeterministicIdentityOnZeroDeltaBitFlip(t *testing.T) {
	buf := []byte{0x01, 0x02}
	orig := append([]byte(nil), buf...)
	// A zero delta sent through arithmeticWalk's read/wrap/write path
	// must leave the buffer unchanged, as a zero-bit flip would.
	v := wrapWidth(readLE(buf, 0, 2)+0, 2)
	if v != 0x0201 {
		t.Fatalf("zero-delta wrap of 0x0201 = %#x, want 0x0201", v)
	}
	writeLE(buf, 0, 2, v)
	if !bytes.Equal(buf, orig) {
		t.Fatalf("zero-delta arithmetic changed the buffer: %x -> %x", orig, buf)
	}
}

func TestHavocNeverPanicsOnSmallInput(t *testing.T) {
	for _, in := range [][]byte{{}, {0x00}, {0x01, 0x02}} {
		out := mutateHavoc(in)
		_ = out
	}
}

func TestDictionaryMutateNeverEmptyOnEmptyInput(t *testing.T) {
	d := NewDictionary(ProtocolHTTP)
	out := d.Mutate(nil)
	if len(out) == 0 {
		t.Fatalf("expected a token on empty input")
	}
}

type fakePeer struct {
	data []byte
}

func (f fakePeer) RandomOther(excludeID string) ([]byte, bool) {
	return f.data, true
}

func TestSpliceConcatenatesPrefixAndSuffix(t *testing.T) {
	in, other := []byte("hello"), []byte("world")
	out := mutateSplice(in, fakePeer{data: other}, "")
	matched := false
	for a := 0; a <= len(in) && !matched; a++ {
		for b := 0; b <= len(other); b++ {
			if bytes.Equal(out, append(append([]byte(nil), in[:a]...), other[b:]...)) {
				matched = true
				break
			}
		}
	}
	if !matched {
		t.Fatalf("splice output %q is not a prefix of %q followed by a suffix of %q", out, in, other)
	}
}

func TestEngineSelectStageRespectsWeightFloor(t *testing.T) {
	e := NewEngine(ProtocolNone)
	for i := 0; i < 1000; i++ {
		e.Observe(fuzztypes.StageHavoc, false)
	}
	if e.weights[fuzztypes.StageHavoc] < minStrategyWeight {
		t.Fatalf("weight must never fall below the floor, got %f", e.weights[fuzztypes.StageHavoc])
	}
	if e.weights[fuzztypes.StageHavoc] != minStrategyWeight {
		t.Fatalf("repeated failure should converge to the floor, got %f", e.weights[fuzztypes.StageHavoc])
	}
}

func TestEngineObserveGrowsWeightOnSuccess(t *testing.T) {
	e := NewEngine(ProtocolNone)
	before := e.weights[fuzztypes.StageDictionary]
	e.Observe(fuzztypes.StageDictionary, true)
	after := e.weights[fuzztypes.StageDictionary]
	if after <= before {
		t.Fatalf("weight should grow after a successful observation: %f -> %f", before, after)
	}
}

func TestProtocolCustomFieldMutationOnJSON(t *testing.T) {
	input := []byte(`{"length":5,"name":"abc"}`)
	out := ProtocolCustom.MutateField(input)
	if len(out) == 0 {
		t.Fatalf("custom grammar mutation should not collapse to empty for valid JSON")
	}
}

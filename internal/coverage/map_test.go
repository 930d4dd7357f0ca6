package coverage

import "testing"

func TestEdgeHashingDirectionSensitive(t *testing.T) {
	m := NewMap()
	m.RecordBlock(0x1A2B)
	m.RecordBlock(0x3C4D)

	idx1 := int(uint16(0x1A2B)^0) % MapSize
	if m.trace[idx1] != 1 {
		t.Fatalf("expected trace[%d] == 1, got %d", idx1, m.trace[idx1])
	}

	idx2 := int(uint16(0x3C4D)^0x0D15) % MapSize
	if m.trace[idx2] != 1 {
		t.Fatalf("expected trace[%d] == 1, got %d", idx2, m.trace[idx2])
	}

	reversed := NewMap()
	reversed.RecordBlock(0x3C4D)
	reversed.RecordBlock(0x1A2B)
	if reversed.trace[idx2] != 0 {
		t.Fatalf("B->A must not hit the A->B edge index %d", idx2)
	}
}

func TestBucketing(t *testing.T) {
	cases := []struct {
		count byte
		class byte
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}, {7, 4}, {8, 5}, {15, 5}, {128, 8},
	}
	for _, c := range cases {
		if got := bucketOf(c.count); got != c.class {
			t.Errorf("bucketOf(%d) = %d, want %d", c.count, got, c.class)
		}
	}
}

func TestBucketingIdempotentAndEquivalenceClass(t *testing.T) {
	for k := byte(0); k < 255; k++ {
		b1 := bucketedByte(k)
		b2 := bucketedByte(b1)
		if bucketOf(b1) != bucketOf(b2) {
			t.Fatalf("bucketize not idempotent for %d", k)
		}
	}
	if bucketOf(4) != bucketOf(7) {
		t.Fatalf("4 and 7 must be in the same bucket")
	}
	if bucketOf(7) == bucketOf(8) {
		t.Fatalf("7 and 8 must be in different buckets")
	}
}

func TestHasNewCoverageAfterBucketingOnly(t *testing.T) {
	// Block 0 forms edge 0 and leaves prevBlock at 0, so repeating it
	// re-hits the same edge.
	m := NewMap()
	for i := 0; i < 4; i++ {
		m.RecordBlock(0)
	}
	if !m.HasNewCoverage() {
		t.Fatalf("first observation of an edge must be new coverage")
	}
	m.Promote()

	// After promoting 4 hits, re-observing the same edge 5 times must not
	// register as new coverage (same bucket); crossing 7 -> 8 must.
	m.Reset()
	for i := 0; i < 5; i++ {
		m.RecordBlock(0)
	}
	if m.HasNewCoverage() {
		t.Fatalf("hit count 5 should already be covered by the bucket of the earlier 4-hit promote")
	}

	m.Reset()
	for i := 0; i < 8; i++ {
		m.RecordBlock(0)
	}
	if !m.HasNewCoverage() {
		t.Fatalf("crossing bucket 4 -> 5 (7 -> 8 hits) must be new coverage")
	}
}

func TestPromoteMonotonic(t *testing.T) {
	m := NewMap()
	before := m.VirginPopcount()
	m.RecordBlock(1)
	m.RecordBlock(2)
	m.Promote()
	after := m.VirginPopcount()
	if after >= before {
		t.Fatalf("virgin popcount must strictly decrease after promoting new edges")
	}

	m.Reset()
	m.RecordBlock(1)
	m.RecordBlock(2)
	m.Promote()
	afterAgain := m.VirginPopcount()
	if afterAgain != after {
		t.Fatalf("re-promoting identical coverage must not change virgin popcount")
	}
}

func TestMapSizeBoundaryParticipates(t *testing.T) {
	m := NewMap()
	// Force an edge that lands at MapSize-1.
	target := uint16(MapSize - 1)
	m.RecordBlock(target)
	if m.trace[MapSize-1] != 1 {
		t.Fatalf("expected boundary index to be hit")
	}
	if !m.HasNewCoverage() {
		t.Fatalf("boundary index must participate in HasNewCoverage")
	}
}

func TestDigestStable(t *testing.T) {
	m1 := NewMap()
	m1.RecordBlock(5)
	m1.RecordBlock(9)

	m2 := NewMap()
	m2.RecordBlock(5)
	m2.RecordBlock(9)

	if m1.Digest() != m2.Digest() {
		t.Fatalf("identical traces must digest identically")
	}
}

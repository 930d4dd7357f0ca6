package scheduler

import (
	"testing"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

func TestNextOnEmptyQueueIsError(t *testing.T) {
	s := New()
	if _, err := s.Next(); err != ErrEmptyQueue {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
}

func TestFavoredSelectedAtLeastTwiceAsOften(t *testing.T) {
	s := New()
	favored := &fuzztypes.CorpusEntry{ID: "a", Favored: true}
	unfavored := &fuzztypes.CorpusEntry{ID: "b", Favored: false}
	s.Add(favored)
	s.Add(unfavored)

	var favoredCount, unfavoredCount int
	const draws = 10000
	for i := 0; i < draws; i++ {
		e, err := s.Next()
		if err != nil {
			t.Fatal(err)
		}
		if e.ID == "a" {
			favoredCount++
		} else {
			unfavoredCount++
		}
		// Keep exec counts identical across entries for the duration of
		// the test so freshness_factor does not confound the ratio.
		favored.ExecCount = 0
		unfavored.ExecCount = 0
	}

	ratio := float64(favoredCount) / float64(unfavoredCount)
	if ratio < 1.9 {
		t.Fatalf("favored entry should be selected at least ~2x as often, got ratio %f (favored=%d unfavored=%d)", ratio, favoredCount, unfavoredCount)
	}
}

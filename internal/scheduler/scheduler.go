// Package scheduler implements the weighted queue scheduler: selection
// over corpus entries proportional to a coverage/size/freshness/favored
// weight, in the teacher's map+Next/UpdatePriority shape but with the
// formula this spec actually requires.
package scheduler

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// ErrEmptyQueue is returned instead of ever falling back to repeating
// a seed (Open Question #2): an empty queue is a fatal configuration
// error at start-up and an unreachable condition at steady state, since
// the corpus never removes entries.
var ErrEmptyQueue = errors.New("scheduler: queue is empty")

// Scheduler holds a reference list of corpus entries and computes
// selection weights on demand from their current bookkeeping fields.
// It is worker-local, like the corpus it schedules over.
type Scheduler struct {
	mu      sync.Mutex
	entries []*fuzztypes.CorpusEntry
	index   map[string]int
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{index: make(map[string]int)}
}

// Add registers a corpus entry with the scheduler. O(1).
func (s *Scheduler) Add(e *fuzztypes.CorpusEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[e.ID]; ok {
		return
	}
	s.index[e.ID] = len(s.entries)
	s.entries = append(s.entries, e)
}

// weight computes w(e) = base * coverage_factor * size_factor *
// freshness_factor * favored_factor.
func weight(e *fuzztypes.CorpusEntry) float64 {
	const base = 1.0
	coverageFactor := 1.0 + float64(e.NewEdges)
	sizeFactor := 1.0 / (1.0 + float64(e.Size)/1024.0)
	freshnessFactor := 1.0 / (1.0 + float64(e.ExecCount)/10.0)
	favoredFactor := 1.0
	if e.Favored {
		favoredFactor = 2.0
	}
	return base * coverageFactor * sizeFactor * freshnessFactor * favoredFactor
}

// Next selects an entry with probability proportional to weight(e).
// O(|corpus|); acceptable because corpora stay in the 10^2-10^4 range.
// Ties (equal weight) are broken by insertion order via the stable
// iteration over s.entries.
func (s *Scheduler) Next() (*fuzztypes.CorpusEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil, ErrEmptyQueue
	}

	total := 0.0
	weights := make([]float64, len(s.entries))
	for i, e := range s.entries {
		w := weight(e)
		weights[i] = w
		total += w
	}

	target := total * secureFloat()
	acc := 0.0
	for i, e := range s.entries {
		acc += weights[i]
		if target <= acc {
			e.ExecCount++
			e.LastSelectedAt = time.Now()
			return e, nil
		}
	}
	last := s.entries[len(s.entries)-1]
	last.ExecCount++
	last.LastSelectedAt = time.Now()
	return last, nil
}

// Len reports the number of scheduled entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func secureFloat() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

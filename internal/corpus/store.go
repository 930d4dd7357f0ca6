// Package corpus implements the content-addressed corpus store: the
// set of admitted inputs, their coverage provenance, and their on-disk
// persistence under <campaign_root>/corpus/.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// ErrDuplicate is returned by Add when the same content has already
// been admitted. The caller discards the mutant silently (spec.md §7:
// CorpusDuplicate is not an error condition, just a signal).
var ErrDuplicate = errors.New("corpus: duplicate entry")

// Store is a single driver's private corpus: a set keyed by content
// hash, backed by <dir>/<id> (raw bytes) and <dir>/<id>.meta (JSON).
// Re-adding identical bytes is idempotent; deletion is not supported —
// corpus minimization is an external, higher-level operation over the
// persisted files, not a Store method.
type Store struct {
	mu      sync.RWMutex
	dir     string
	entries map[string]*fuzztypes.CorpusEntry
	order   []string
}

// NewStore creates (if needed) dir and returns an empty Store rooted
// there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, entries: make(map[string]*fuzztypes.CorpusEntry)}, nil
}

func contentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// Add admits bytes into the corpus, attributing the coverage hash and
// optional parent that caused admission. Returns ErrDuplicate, never a
// fatal error, when the content already exists.
func (s *Store) Add(data []byte, coverageHash uint64, parentID string, newEdges int) (*fuzztypes.CorpusEntry, error) {
	id := contentID(data)

	s.mu.Lock()
	if existing, ok := s.entries[id]; ok {
		s.mu.Unlock()
		return existing, ErrDuplicate
	}

	entry := &fuzztypes.CorpusEntry{
		ID:           id,
		Data:         data,
		ParentID:     parentID,
		CoverageHash: coverageHash,
		NewEdges:     newEdges,
		Size:         len(data),
		DiscoveredAt: time.Now(),
	}
	if parentID != "" {
		if parent, ok := s.entries[parentID]; ok {
			entry.Depth = parent.Depth + 1
		}
	}
	s.entries[id] = entry
	s.order = append(s.order, id)
	s.mu.Unlock()

	if err := s.persist(entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// AddSeed admits a seed input directly, marked favored, depth 0.
func (s *Store) AddSeed(data []byte) (*fuzztypes.CorpusEntry, error) {
	id := contentID(data)

	s.mu.Lock()
	if existing, ok := s.entries[id]; ok {
		s.mu.Unlock()
		return existing, ErrDuplicate
	}
	entry := &fuzztypes.CorpusEntry{
		ID:           id,
		Data:         data,
		Favored:      true,
		Size:         len(data),
		DiscoveredAt: time.Now(),
	}
	s.entries[id] = entry
	s.order = append(s.order, id)
	s.mu.Unlock()

	if err := s.persist(entry); err != nil {
		return entry, err
	}
	return entry, nil
}

func (s *Store) persist(entry *fuzztypes.CorpusEntry) error {
	dataPath := filepath.Join(s.dir, entry.ID)
	if err := os.WriteFile(dataPath, entry.Data, 0o644); err != nil {
		return err
	}
	meta, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(dataPath+".meta", meta, 0o644)
}

// Get returns the bytes for id.
func (s *Store) Get(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.Data, true
}

// GetEntry returns the full entry metadata for id.
func (s *Store) GetEntry(id string) (*fuzztypes.CorpusEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Random returns an arbitrary entry, optionally excluding one id.
func (s *Store) Random(excludeID string) (*fuzztypes.CorpusEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return nil, false
	}
	for attempts := 0; attempts < len(s.order)+1; attempts++ {
		id := s.order[secureIndex(len(s.order))]
		if id == excludeID && len(s.order) > 1 {
			continue
		}
		return s.entries[id], true
	}
	for _, id := range s.order {
		if id != excludeID {
			return s.entries[id], true
		}
	}
	return nil, false
}

// RandomOther implements mutator.CorpusPeek for the splice stage.
func (s *Store) RandomOther(excludeID string) ([]byte, bool) {
	e, ok := s.Random(excludeID)
	if !ok {
		return nil, false
	}
	return e.Data, true
}

// IterEntries returns a restartable snapshot of all entries in
// insertion order. It is finite: callers get a fixed slice, not a
// live-updating channel.
func (s *Store) IterEntries() []*fuzztypes.CorpusEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*fuzztypes.CorpusEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}

// Size returns the number of entries.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// ByteSize returns the sum of entry sizes.
func (s *Store) ByteSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, id := range s.order {
		total += s.entries[id].Size
	}
	return total
}

// MarkFavored flips the favored bit on an entry already in the store,
// used by the scheduler after admitting a high-value mutant.
func (s *Store) MarkFavored(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.Favored = true
	}
}

// Load repopulates the store from dir's previously persisted entries,
// used when resuming a campaign.
func Load(dir string) (*Store, error) {
	s, err := NewStore(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return s, err
	}
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || filepath.Ext(name) == ".meta" {
			continue
		}
		metaPath := filepath.Join(dir, name+".meta")
		metaBytes, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}
		var entry fuzztypes.CorpusEntry
		if err := json.Unmarshal(metaBytes, &entry); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		entry.Data = data
		s.entries[entry.ID] = &entry
		s.order = append(s.order, entry.ID)
	}
	return s, nil
}

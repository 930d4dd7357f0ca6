package corpus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

func TestSeedWatcherAdmitsNewFilesAndCallsOnAdmit(t *testing.T) {
	seedsDir := t.TempDir()
	storeDir := t.TempDir()
	store, err := NewStore(storeDir)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(seedsDir, "seed1"), []byte("AAAA"), 0o644); err != nil {
		t.Fatal(err)
	}

	var admitted []*fuzztypes.CorpusEntry
	w := NewSeedWatcher(seedsDir, store, time.Hour, func(e *fuzztypes.CorpusEntry) {
		admitted = append(admitted, e)
	})
	w.scanOnce()

	if store.Size() != 1 {
		t.Fatalf("expected the seed to be admitted into the store, got size %d", store.Size())
	}
	if len(admitted) != 1 {
		t.Fatalf("expected onAdmit to fire once, got %d calls", len(admitted))
	}

	// A second scan over the same unchanged directory must not re-admit
	// or re-fire onAdmit for a file already seen.
	w.scanOnce()
	if len(admitted) != 1 {
		t.Fatalf("expected onAdmit not to fire again for an already-seen file, got %d calls", len(admitted))
	}

	if err := os.WriteFile(filepath.Join(seedsDir, "seed2"), []byte("BBBB"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.scanOnce()
	if store.Size() != 2 || len(admitted) != 2 {
		t.Fatalf("expected the newly dropped seed to be admitted and reported, store size=%d admitted=%d", store.Size(), len(admitted))
	}
}

func TestSeedWatcherNilOnAdmitIsSafe(t *testing.T) {
	seedsDir := t.TempDir()
	storeDir := t.TempDir()
	store, err := NewStore(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(seedsDir, "seed1"), []byte("AAAA"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewSeedWatcher(seedsDir, store, time.Hour, nil)
	w.scanOnce()

	if store.Size() != 1 {
		t.Fatalf("expected the seed to be admitted even with a nil onAdmit, got size %d", store.Size())
	}
}

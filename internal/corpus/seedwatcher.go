package corpus

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// SeedWatcher periodically rescans seeds_dir for newly dropped seed
// files and admits them into the store while a campaign is running.
// Adapted from the teacher's queue/worker discovery idiom (crawler
// package) for a filesystem source instead of an HTTP one: this is a
// supplement beyond spec.md's core (a corpus can always be grown from
// a live directory), not a redefinition of Store.Add's semantics.
type SeedWatcher struct {
	dir      string
	store    *Store
	interval time.Duration
	seen     map[string]bool
	logger   *slog.Logger
	onAdmit  func(*fuzztypes.CorpusEntry)
}

// NewSeedWatcher builds a watcher over dir, polling every interval.
// onAdmit, if non-nil, is called for every newly admitted seed so a
// caller can feed it straight into a running scheduler; it may be nil.
func NewSeedWatcher(dir string, store *Store, interval time.Duration, onAdmit func(*fuzztypes.CorpusEntry)) *SeedWatcher {
	return &SeedWatcher{
		dir:      dir,
		store:    store,
		interval: interval,
		seen:     make(map[string]bool),
		logger:   slog.Default().With(slog.String("component", "seed_watcher")),
		onAdmit:  onAdmit,
	}
}

// Run blocks, rescanning until ctx is cancelled.
func (w *SeedWatcher) Run(ctx context.Context) {
	w.scanOnce()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scanOnce()
		}
	}
}

func (w *SeedWatcher) scanOnce() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("seed directory scan failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if e.IsDir() || w.seen[e.Name()] {
			continue
		}
		w.seen[e.Name()] = true
		data, err := os.ReadFile(filepath.Join(w.dir, e.Name()))
		if err != nil {
			continue
		}
		entry, err := w.store.AddSeed(data)
		if err != nil {
			if err != ErrDuplicate {
				w.logger.Warn("failed to admit seed", slog.String("file", e.Name()), slog.String("error", err.Error()))
			}
			continue
		}
		if w.onAdmit != nil {
			w.onAdmit(entry)
		}
	}
}

// Package syncfs implements the filesystem-backed cross-worker corpus
// synchronizer: each worker owns a queue directory it writes to with
// write-then-rename atomicity; peers only ever read each other's
// directories. Grounded on the teacher's internal/coverage's on-disk
// corpus persistence idiom (os.MkdirAll/os.WriteFile/os.ReadDir); the
// HTTP master/worker transport in internal/cluster was not reused here
// since this spec requires a filesystem queue, not an RPC protocol.
package syncfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// Worker is one driver's handle onto the shared sync_root: it owns
// <sync_root>/<worker_id>/queue for writes and treats every sibling
// directory as read-only.
type Worker struct {
	root       string
	workerID   string
	queueDir   string
	limiter    *rate.Limiter
	lastImport time.Time

	mu        sync.Mutex
	published map[uint64]bool // coverage hashes already published by this worker
}

// New creates (if needed) this worker's queue directory under root and
// returns a handle to it.
func New(root, workerID string) (*Worker, error) {
	queueDir := filepath.Join(root, workerID, "queue")
	if err := os.MkdirAll(queueDir, 0o755); err != nil {
		return nil, err
	}
	return &Worker{
		root:      root,
		workerID:  workerID,
		queueDir:  queueDir,
		limiter:   rate.NewLimiter(rate.Limit(50), 50),
		published: make(map[uint64]bool),
	}, nil
}

// Publish writes data to a temp file in this worker's queue directory
// then renames it to id_<input_hash>_<cov8>, matching the on-disk
// filename discipline. A coverage hash already published by this
// worker is skipped.
func (w *Worker) Publish(data []byte, coverageHash uint64) error {
	w.mu.Lock()
	if w.published[coverageHash] {
		w.mu.Unlock()
		return nil
	}
	w.published[coverageHash] = true
	w.mu.Unlock()

	if w.limiter != nil {
		_ = w.limiter.Wait(context.Background())
	}

	inputHash := sum16(data)
	cov8 := fmt.Sprintf("%08x", uint32(coverageHash))
	finalName := fmt.Sprintf("id_%s_%s", inputHash, cov8)

	tmp, err := os.CreateTemp(w.queueDir, ".tmp-sync-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, filepath.Join(w.queueDir, finalName))
}

// ImportNew scans every peer's queue directory for entries written
// since this worker's last import tick, with strict mtime > since to
// avoid re-importing on the same tick. Peer directories are scanned
// concurrently through a bounded pool.
func (w *Worker) ImportNew() ([]fuzztypes.SyncedInput, error) {
	since := w.lastImport
	next := time.Now()

	peers, err := os.ReadDir(w.root)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var results []fuzztypes.SyncedInput

	pool, poolErr := ants.NewPool(8)
	if poolErr != nil {
		for _, p := range peers {
			if p.Name() == w.workerID || !p.IsDir() {
				continue
			}
			results = append(results, scanPeerQueue(w.root, p.Name(), since)...)
		}
		w.lastImport = next
		return results, nil
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, p := range peers {
		if p.Name() == w.workerID || !p.IsDir() {
			continue
		}
		name := p.Name()
		wg.Add(1)
		_ = pool.Submit(func() {
			defer wg.Done()
			found := scanPeerQueue(w.root, name, since)
			if len(found) == 0 {
				return
			}
			mu.Lock()
			results = append(results, found...)
			mu.Unlock()
		})
	}
	wg.Wait()
	w.lastImport = next
	return results, nil
}

func scanPeerQueue(root, peerID string, since time.Time) []fuzztypes.SyncedInput {
	queueDir := filepath.Join(root, peerID, "queue")
	entries, err := os.ReadDir(queueDir)
	if err != nil {
		return nil
	}
	var out []fuzztypes.SyncedInput
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-sync-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().After(since) {
			continue
		}
		path := filepath.Join(queueDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		out = append(out, fuzztypes.SyncedInput{
			Data:         data,
			CoverageHash: parseCoverageHash(e.Name()),
			SourceWorker: peerID,
			Timestamp:    info.ModTime(),
		})
	}
	return out
}

// parseCoverageHash extracts the coverage hash from a filename shaped
// id_<input_hash>_<cov8>, tolerating arbitrary extra underscores
// within the input-hash segment. Fewer than three underscore-separated
// parts yields a zero hash rather than an error.
func parseCoverageHash(name string) uint64 {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return 0
	}
	cov8 := parts[len(parts)-1]
	v, err := strconv.ParseUint(cov8, 16, 32)
	if err != nil {
		return 0
	}
	return v
}

// Cleanup removes this worker's owning queue directory tree, called on
// graceful shutdown.
func (w *Worker) Cleanup() error {
	return os.RemoveAll(filepath.Join(w.root, w.workerID))
}

func sum16(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

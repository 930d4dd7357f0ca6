package syncfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPublishWritesFileAtomically(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, "worker_0")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Publish([]byte("seed-data"), 0xdeadbeef); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "worker_0", "queue"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one published file, got %d", len(entries))
	}
	if strings.HasPrefix(entries[0].Name(), ".tmp-sync-") {
		t.Fatalf("temp file leaked into queue dir: %s", entries[0].Name())
	}
}

func TestPublishSkipsAlreadyPublishedCoverageHash(t *testing.T) {
	root := t.TempDir()
	w, _ := New(root, "worker_0")
	_ = w.Publish([]byte("a"), 42)
	_ = w.Publish([]byte("b"), 42)

	entries, _ := os.ReadDir(filepath.Join(root, "worker_0", "queue"))
	if len(entries) != 1 {
		t.Fatalf("expected the second publish with the same coverage hash to be skipped, got %d files", len(entries))
	}
}

func TestImportNewStrictlyGreaterThanSince(t *testing.T) {
	root := t.TempDir()
	producer, _ := New(root, "worker_0")
	consumer, _ := New(root, "worker_1")

	if err := producer.Publish([]byte("peer-input"), 7); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	imported, err := consumer.ImportNew()
	if err != nil {
		t.Fatalf("ImportNew: %v", err)
	}
	if len(imported) != 1 {
		t.Fatalf("expected 1 imported input, got %d", len(imported))
	}
	if string(imported[0].Data) != "peer-input" {
		t.Fatalf("unexpected imported data: %q", imported[0].Data)
	}

	// A second import tick with nothing new published must be empty:
	// the strict mtime > since comparison prevents re-importing the
	// same file on the next tick.
	again, err := consumer.ImportNew()
	if err != nil {
		t.Fatalf("ImportNew (second tick): %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no re-import on unchanged queue, got %d", len(again))
	}
}

func TestParseCoverageHashTolerance(t *testing.T) {
	cases := map[string]uint64{
		"id_abc_def_000000ff": 0xff,
		"id_abc_000000ff":     0xff,
		"malformed":           0,
	}
	for name, want := range cases {
		if got := parseCoverageHash(name); got != want {
			t.Errorf("parseCoverageHash(%q) = %x, want %x", name, got, want)
		}
	}
}

func TestCleanupRemovesOwningDirectory(t *testing.T) {
	root := t.TempDir()
	w, _ := New(root, "worker_0")
	_ = w.Publish([]byte("x"), 1)

	if err := w.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "worker_0")); !os.IsNotExist(err) {
		t.Fatalf("expected worker_0 directory to be removed")
	}
}

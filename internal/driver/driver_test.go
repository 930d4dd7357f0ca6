package driver

import (
	"context"
	"testing"

	"github.com/fluxfuzz/fluxfuzz/internal/corpus"
	"github.com/fluxfuzz/fluxfuzz/internal/coverage"
	"github.com/fluxfuzz/fluxfuzz/internal/crashdetector"
	"github.com/fluxfuzz/fluxfuzz/internal/executor"
	"github.com/fluxfuzz/fluxfuzz/internal/mutator"
	"github.com/fluxfuzz/fluxfuzz/internal/scheduler"
)

func newTestDriver(t *testing.T, maxExecs int64) *Driver {
	t.Helper()
	store, err := corpus.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	seed, err := store.AddSeed([]byte("seed"))
	if err != nil {
		t.Fatalf("AddSeed: %v", err)
	}

	sched := scheduler.New()
	sched.Add(seed)

	cfg := Config{
		WorkerID:         "worker_test",
		MaxExecutions:    maxExecs,
		MutationsPerSeed: 1,
		SyncInterval:     0,
	}
	exec := executor.New(&executor.Options{Argv: []string{"/bin/cat"}, TimeoutMs: 1000})

	return New(cfg, coverage.NewMap(), store, sched, mutator.NewEngine(mutator.ProtocolNone), exec, crashdetector.New(), nil)
}

func TestDriverReturnsErrNoSeedsWhenSchedulerEmpty(t *testing.T) {
	store, _ := corpus.NewStore(t.TempDir())
	sched := scheduler.New()
	exec := executor.New(&executor.Options{Argv: []string{"/bin/cat"}, TimeoutMs: 1000})
	d := New(Config{WorkerID: "w"}, coverage.NewMap(), store, sched, mutator.NewEngine(mutator.ProtocolNone), exec, crashdetector.New(), nil)

	err := d.Run(context.Background(), func() bool { return false })
	if err != ErrNoSeeds {
		t.Fatalf("expected ErrNoSeeds, got %v", err)
	}
}

func TestDriverStopsAtMaxExecutions(t *testing.T) {
	d := newTestDriver(t, 3)
	err := d.Run(context.Background(), func() bool { return false })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := d.Snapshot()
	if snap.Executions < 3 {
		t.Fatalf("expected at least 3 executions recorded, got %d", snap.Executions)
	}
}

func TestDriverStopsOnExternalSignal(t *testing.T) {
	d := newTestDriver(t, 0)
	calls := 0
	stop := func() bool {
		calls++
		return calls > 2
	}
	if err := d.Run(context.Background(), stop); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// Package driver implements the per-worker fuzzing loop: the canonical
// step sequence composing the coverage map, mutation engine, executor,
// crash detector, corpus store, and scheduler, plus the strategy weight
// feedback and periodic sync tick. Grounded on the teacher's
// internal/coverage.FeedbackLoop.run loop shape (select on
// ctx/stop, budget checks, running-average exec-time stat), with the
// step order replaced to match this spec's §4.8 exactly.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fluxfuzz/fluxfuzz/internal/corpus"
	"github.com/fluxfuzz/fluxfuzz/internal/coverage"
	"github.com/fluxfuzz/fluxfuzz/internal/crashdetector"
	"github.com/fluxfuzz/fluxfuzz/internal/executor"
	"github.com/fluxfuzz/fluxfuzz/internal/minimizer"
	"github.com/fluxfuzz/fluxfuzz/internal/mutator"
	"github.com/fluxfuzz/fluxfuzz/internal/scheduler"
	"github.com/fluxfuzz/fluxfuzz/internal/syncfs"
	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// Config bounds one driver's run.
type Config struct {
	WorkerID         string
	Argv             []string
	MaxExecutions    int64 // 0 = unbounded
	MaxDuration      time.Duration
	MutationsPerSeed int
	MinimizeCrashes  bool
	SyncInterval     time.Duration
	CrashDir         string
}

// Stats is the live, atomically-updated counters a running driver
// exposes; it is also what gets written to the per-worker stats file
// for the Supervisor to poll (spec.md §9's "stats file each worker
// rewrites atomically" alternative to a shared-memory ring buffer).
type Stats struct {
	Executions  int64
	Crashes     int64
	Hangs       int64
	AvgExecNs   int64
	lastUpdate  atomic.Value // time.Time
}

// Driver owns one coverage map, one corpus, one scheduler, and one
// mutation engine, all process-local per spec.md §5: no concurrency to
// reason about inside a single driver's hot loop.
type Driver struct {
	cfg       Config
	cov       *coverage.Map
	store     *corpus.Store
	sched     *scheduler.Scheduler
	engine    *mutator.Engine
	exec      *executor.Executor
	detector  *crashdetector.Detector
	syncer    *syncfs.Worker
	stats     *Stats
	logger    *slog.Logger
	startTime time.Time
}

// New builds a driver from its fully-constructed collaborators.
func New(cfg Config, cov *coverage.Map, store *corpus.Store, sched *scheduler.Scheduler, engine *mutator.Engine, exec *executor.Executor, detector *crashdetector.Detector, syncer *syncfs.Worker) *Driver {
	st := &Stats{}
	st.lastUpdate.Store(time.Now())
	return &Driver{
		cfg:      cfg,
		cov:      cov,
		store:    store,
		sched:    sched,
		engine:   engine,
		exec:     exec,
		detector: detector,
		syncer:   syncer,
		stats:    st,
		logger:   slog.Default().With(slog.String("component", "driver"), slog.String("worker", cfg.WorkerID)),
	}
}

// ErrNoSeeds is returned by Run when the scheduler starts empty: per
// Open Question #2, this is a fatal configuration error, never a
// silent fallback to repeating a seed.
var ErrNoSeeds = errors.New("driver: no seeds loaded, cannot start fuzzing")

// Run executes the canonical loop until stop() returns true, ctx is
// cancelled, or a fatal condition occurs.
func (d *Driver) Run(ctx context.Context, stop func() bool) error {
	if d.sched.Len() == 0 {
		return ErrNoSeeds
	}
	d.startTime = time.Now()
	lastSync := time.Now()

	for {
		select {
		case <-ctx.Done():
			d.finalSyncTick()
			return nil
		default:
		}

		if stop() {
			d.finalSyncTick()
			return nil
		}
		if d.cfg.MaxExecutions > 0 && atomic.LoadInt64(&d.stats.Executions) >= d.cfg.MaxExecutions {
			d.finalSyncTick()
			return nil
		}
		if d.cfg.MaxDuration > 0 && time.Since(d.startTime) > d.cfg.MaxDuration {
			d.finalSyncTick()
			return nil
		}

		entry, err := d.sched.Next()
		if err != nil {
			if errors.Is(err, scheduler.ErrEmptyQueue) {
				// Unreachable at steady state per Open Question #2:
				// corpus entries are never removed once admitted.
				return errors.New("driver: invariant violation, empty queue at steady state")
			}
			return err
		}

		mutationsThisSeed := d.cfg.MutationsPerSeed
		if mutationsThisSeed <= 0 {
			mutationsThisSeed = 1
		}
		for i := 0; i < mutationsThisSeed; i++ {
			if err := d.iterate(ctx, entry); err != nil {
				d.logger.Warn("iteration error", slog.String("error", err.Error()))
			}
		}

		if time.Since(lastSync) >= d.cfg.SyncInterval {
			d.syncTick()
			lastSync = time.Now()
		}
	}
}

// iterate is one pass of the canonical step sequence from spec.md §4.8.
func (d *Driver) iterate(ctx context.Context, entry *fuzztypes.CorpusEntry) error {
	stage := d.engine.SelectStage()
	mutant := d.engine.Mutate(entry.Data, stage, d.store, entry.ID)

	d.cov.Reset()
	result, err := d.exec.Execute(ctx, mutant)
	if err != nil && result == nil {
		return err
	}

	newCov := d.cov.HasNewCoverage()

	if crashdetector.IsCrash(result) {
		d.handleCrash(result, mutant)
	}

	if newCov {
		newEdges := d.cov.Promote()
		admitted, admitErr := d.store.Add(mutant, d.cov.Digest(), entry.ID, newEdges)
		if admitErr == nil {
			d.sched.Add(admitted)
		}
		// CorpusDuplicate is silently dropped per spec.md §7.
	}

	d.engine.Observe(stage, newCov)
	d.recordStats(result, newCov)
	return nil
}

func (d *Driver) handleCrash(result *fuzztypes.ExecutionResult, mutant []byte) {
	record := d.detector.Observe(result, mutant)
	if record == nil {
		return
	}
	atomic.AddInt64(&d.stats.Crashes, 1)
	if result.TimedOut {
		atomic.AddInt64(&d.stats.Hangs, 1)
	}

	if record.Count > 1 {
		return // already persisted on first observation
	}

	if d.cfg.MinimizeCrashes {
		d.minimizeAndPersist(record)
	} else {
		persistCrash(d.cfg.CrashDir, record)
	}
	persistClusters(d.cfg.CrashDir, d.detector.Clusters(fuzzyClusterMaxDistance))
}

func (d *Driver) minimizeAndPersist(record *fuzztypes.CrashRecord) {
	targetHash := record.CrashHash
	tester := func(ctx context.Context, candidate []byte) minimizer.Verdict {
		result, err := d.exec.Execute(ctx, candidate)
		if err != nil && result == nil {
			return minimizer.NoCrash
		}
		if !crashdetector.IsCrash(result) {
			return minimizer.NoCrash
		}
		frames := crashdetector.ExtractStackTrace(string(result.Stderr))
		if len(frames) == 0 && len(result.Stderr) == 0 {
			return minimizer.Changed
		}
		probe := d.detector.Observe(result, candidate)
		if probe != nil && probe.CrashHash == targetHash {
			return minimizer.Preserved
		}
		return minimizer.Changed
	}

	res := minimizer.Minimize(context.Background(), record.InputBytes, tester, minimizer.DefaultBudget)
	size := len(res.Data)
	record.MinimizedBytes = res.Data
	record.MinimizedSize = &size
	persistCrash(d.cfg.CrashDir, record)
}

func (d *Driver) recordStats(result *fuzztypes.ExecutionResult, newCov bool) {
	execNs := result.WallTime.Nanoseconds()
	execCount := atomic.AddInt64(&d.stats.Executions, 1)
	prevAvg := atomic.LoadInt64(&d.stats.AvgExecNs)
	newAvg := prevAvg + (execNs-prevAvg)/execCount
	atomic.StoreInt64(&d.stats.AvgExecNs, newAvg)
	d.stats.lastUpdate.Store(time.Now())
}

func (d *Driver) syncTick() {
	if d.syncer == nil {
		return
	}
	for _, e := range d.store.IterEntries() {
		if err := d.syncer.Publish(e.Data, e.CoverageHash); err != nil {
			d.logger.Warn("sync publish failed", slog.String("error", err.Error()))
		}
	}
	imported, err := d.syncer.ImportNew()
	if err != nil {
		d.logger.Warn("sync import failed", slog.String("error", err.Error()))
		return
	}
	for _, in := range imported {
		if entry, err := d.store.Add(in.Data, in.CoverageHash, "", 0); err == nil {
			d.sched.Add(entry)
		}
	}
}

func (d *Driver) finalSyncTick() {
	d.syncTick()
	d.logger.Info("driver stopped",
		slog.Int64("executions", atomic.LoadInt64(&d.stats.Executions)),
		slog.Int64("crashes", atomic.LoadInt64(&d.stats.Crashes)),
	)
}

// Snapshot returns the current WorkerStats for this driver, for the
// Supervisor's stats file poll.
func (d *Driver) Snapshot() fuzztypes.WorkerStats {
	execs := atomic.LoadInt64(&d.stats.Executions)
	uptime := time.Since(d.startTime).Seconds()
	eps := 0.0
	if uptime > 0 {
		eps = float64(execs) / uptime
	}
	lastUpdate, _ := d.stats.lastUpdate.Load().(time.Time)

	entries := d.store.IterEntries()
	edges := make([]uint64, 0, len(entries))
	for _, e := range entries {
		edges = append(edges, e.CoverageHash)
	}

	return fuzztypes.WorkerStats{
		WorkerID:       d.cfg.WorkerID,
		Executions:     execs,
		Crashes:        atomic.LoadInt64(&d.stats.Crashes),
		Hangs:          atomic.LoadInt64(&d.stats.Hangs),
		CoverageEdges:  edges,
		LastUpdate:     float64(lastUpdate.Unix()),
		ExecsPerSecond: eps,
		CorpusSize:     d.store.Size(),
		StartedAt:      d.startTime,
	}
}

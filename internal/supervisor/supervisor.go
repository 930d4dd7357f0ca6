// Package supervisor spawns and monitors the N worker processes of a
// fuzzing campaign, aggregates their stats, enforces a run duration,
// and performs graceful shutdown. Grounded on the teacher's
// internal/cluster.Coordinator's inactivity-threshold monitoring loop
// and internal/parallel's worker_pool spawn/scale/stats-counter shape,
// translated from HTTP polling and goroutine spawning to os/exec
// process spawning and stats-file polling.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// DefaultInactivityThreshold is how stale a worker's stats file can get
// before it is flagged inactive, per spec.md §4.10.
const DefaultInactivityThreshold = 10 * time.Second

// gracePeriod is how long a worker gets to exit after SIGTERM before
// the Supervisor escalates to SIGKILL.
const gracePeriod = 5 * time.Second

// Config describes one supervised campaign run.
type Config struct {
	BinaryPath          string   // the fuzzer's own executable, re-exec'd with the hidden "worker" subcommand
	WorkerArgs          []string // flags forwarded to each worker invocation (target argv, corpus dir, etc.)
	NumWorkers          int
	RunRoot             string // parent directory for the per-run shared directory; defaults to os.TempDir()
	Duration            time.Duration
	InactivityThreshold time.Duration
	PollInterval        time.Duration
}

// worker tracks one spawned OS process and its last-known stats.
type worker struct {
	id        string
	cmd       *exec.Cmd
	statsPath string
	stats     fuzztypes.WorkerStats
	inactive  bool
}

// Supervisor owns the per-run shared directory and the worker process
// table for its lifetime.
type Supervisor struct {
	cfg       Config
	runDir    string
	logger    *slog.Logger
	mu        sync.Mutex
	workers   []*worker
	seenEdges map[uint64]bool
}

// New creates the per-run shared directory (suffixed with a uuid so
// concurrent campaigns never collide) and returns a Supervisor ready
// to Run.
func New(cfg Config) (*Supervisor, error) {
	if cfg.NumWorkers <= 0 {
		return nil, errors.New("supervisor: NumWorkers must be positive")
	}
	if cfg.InactivityThreshold == 0 {
		cfg.InactivityThreshold = DefaultInactivityThreshold
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	base := cfg.RunRoot
	if base == "" {
		base = os.TempDir()
	}
	runDir := filepath.Join(base, "fluxfuzz-run-"+uuid.NewString())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}
	return &Supervisor{
		cfg:       cfg,
		runDir:    runDir,
		logger:    slog.Default().With(slog.String("component", "supervisor")),
		seenEdges: make(map[uint64]bool),
	}, nil
}

// RunDir is the shared directory passed to every worker (sync root and
// stats directory live underneath it).
func (s *Supervisor) RunDir() string { return s.runDir }

// Run spawns NumWorkers processes, polls their stats files until ctx
// is cancelled, the interrupt channel fires, or Duration elapses, then
// performs graceful shutdown and removes the shared directory.
func (s *Supervisor) Run(ctx context.Context, interrupt <-chan os.Signal) error {
	defer os.RemoveAll(s.runDir)

	if err := s.spawnAll(); err != nil {
		return err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Duration)
		defer cancel()
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			s.shutdownAll()
			return nil
		case <-interrupt:
			s.shutdownAll()
			return nil
		case <-ticker.C:
			s.pollStats()
		}
	}
}

func (s *Supervisor) statsDir() string {
	return filepath.Join(s.runDir, "stats")
}

func (s *Supervisor) spawnAll() error {
	if err := os.MkdirAll(s.statsDir(), 0o755); err != nil {
		return err
	}
	for i := 0; i < s.cfg.NumWorkers; i++ {
		id := "worker_" + uuid.NewString()[:8]
		statsPath := filepath.Join(s.statsDir(), id+".json")

		args := append([]string{"worker",
			"--id", id,
			"--run-dir", s.runDir,
			"--stats-file", statsPath,
		}, s.cfg.WorkerArgs...)

		cmd := exec.Command(s.cfg.BinaryPath, args...)
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			s.logger.Error("failed to spawn worker", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		s.workers = append(s.workers, &worker{id: id, cmd: cmd, statsPath: statsPath})
		s.mu.Unlock()

		s.logger.Info("spawned worker", slog.String("id", id), slog.Int("pid", cmd.Process.Pid))
	}
	if len(s.workers) == 0 {
		return errors.New("supervisor: no workers could be spawned")
	}
	return nil
}

func (s *Supervisor) pollStats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, w := range s.workers {
		data, err := os.ReadFile(w.statsPath)
		if err != nil {
			continue
		}
		var stats fuzztypes.WorkerStats
		if err := json.Unmarshal(data, &stats); err != nil {
			continue
		}
		w.stats = stats
		for _, e := range stats.CoverageEdges {
			s.seenEdges[e] = true
		}
		age := now.Sub(time.Unix(int64(stats.LastUpdate), 0))
		w.inactive = age > s.cfg.InactivityThreshold
	}
}

// Snapshot aggregates the last-polled per-worker stats into a campaign
// summary: sums across active workers, union of edges.
func (s *Supervisor) Snapshot() fuzztypes.SupervisorStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg := fuzztypes.SupervisorStats{UniqueEdges: len(s.seenEdges)}
	for _, w := range s.workers {
		snap := w.stats
		snap.Inactive = w.inactive
		agg.Workers = append(agg.Workers, snap)
		if snap.Inactive {
			continue
		}
		agg.TotalExecutions += snap.Executions
		agg.TotalCrashes += snap.Crashes
		agg.TotalHangs += snap.Hangs
		agg.ExecsPerSecond += snap.ExecsPerSecond
	}
	return agg
}

// shutdownAll sends SIGTERM to every worker's process group, waits up
// to gracePeriod, then escalates to SIGKILL for any still running.
func (s *Supervisor) shutdownAll() {
	s.mu.Lock()
	workers := append([]*worker(nil), s.workers...)
	s.mu.Unlock()

	for _, w := range workers {
		if w.cmd.Process == nil {
			continue
		}
		_ = syscall.Kill(-w.cmd.Process.Pid, syscall.SIGTERM)
	}

	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			w.cmd.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(gracePeriod):
		for _, w := range workers {
			if w.cmd.Process != nil {
				_ = syscall.Kill(-w.cmd.Process.Pid, syscall.SIGKILL)
			}
		}
	}
}

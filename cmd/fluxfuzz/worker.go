package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxfuzz/fluxfuzz/internal/config"
	"github.com/fluxfuzz/fluxfuzz/internal/corpus"
	"github.com/fluxfuzz/fluxfuzz/internal/coverage"
	"github.com/fluxfuzz/fluxfuzz/internal/crashdetector"
	"github.com/fluxfuzz/fluxfuzz/internal/driver"
	"github.com/fluxfuzz/fluxfuzz/internal/executor"
	"github.com/fluxfuzz/fluxfuzz/internal/mutator"
	"github.com/fluxfuzz/fluxfuzz/internal/scheduler"
	"github.com/fluxfuzz/fluxfuzz/internal/syncfs"
)

// newWorkerCmd builds the hidden subcommand the Supervisor re-execs
// itself as: one OS process running exactly one driver loop.
func newWorkerCmd() *cobra.Command {
	var workerID, runDir, statsFile, configPath string

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run a single fuzzing worker (internal; spawned by the supervisor)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runWorker(workerID, runDir, statsFile, cfg)
		},
	}

	cmd.Flags().StringVar(&workerID, "id", "", "This worker's unique id")
	cmd.Flags().StringVar(&runDir, "run-dir", "", "The shared per-run directory created by the supervisor")
	cmd.Flags().StringVar(&statsFile, "stats-file", "", "Path this worker atomically rewrites with its stats")
	cmd.Flags().StringVarP(&configPath, "config", "c", "fluxfuzz.yaml", "Path to the campaign config (YAML)")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("run-dir")
	cmd.MarkFlagRequired("stats-file")

	return cmd
}

func runWorker(workerID, runDir, statsFile string, cfg *config.Config) error {
	corpusDir := cfg.CorpusDir
	if corpusDir == "" {
		corpusDir = filepath.Join(runDir, "corpus", workerID)
	}
	store, err := corpus.Load(corpusDir)
	if err != nil {
		return fmt.Errorf("worker %s: load corpus: %w", workerID, err)
	}
	if store.Size() == 0 {
		if err := seedFromDir(store, cfg.SeedsDir); err != nil {
			return fmt.Errorf("worker %s: seed corpus: %w", workerID, err)
		}
	}

	sched := scheduler.New()
	for _, e := range store.IterEntries() {
		sched.Add(e)
	}

	proto := mutator.ProtocolForName(cfg.Protocol)
	engine := mutator.NewEngine(proto)

	exec := executor.New(&executor.Options{
		Argv:             cfg.Argv,
		TimeoutMs:        cfg.TimeoutMs,
		MemoryLimitBytes: cfg.MemoryLimitBytes,
		Sanitizers:       cfg.Sanitizers,
	})

	detector := crashdetector.New()

	syncRoot := cfg.SyncRoot
	if runDir != "" {
		syncRoot = filepath.Join(runDir, "sync")
	}
	syncer, err := syncfs.New(syncRoot, workerID)
	if err != nil {
		return fmt.Errorf("worker %s: sync init: %w", workerID, err)
	}
	defer syncer.Cleanup()

	crashDir := cfg.CrashDir
	if crashDir == "" {
		crashDir = filepath.Join(runDir, "crashes")
	}

	d := driver.New(driver.Config{
		WorkerID:         workerID,
		Argv:             cfg.Argv,
		MaxExecutions:    cfg.MaxExecutions,
		MutationsPerSeed: 16,
		MinimizeCrashes:  cfg.MinimizeCrashes,
		SyncInterval:     time.Duration(cfg.SyncIntervalS) * time.Second,
		CrashDir:         crashDir,
	}, coverage.NewMap(), store, sched, engine, exec, detector, syncer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopStatsWriter := make(chan struct{})
	go writeStatsPeriodically(d, statsFile, stopStatsWriter)
	defer close(stopStatsWriter)

	if cfg.SeedsDir != "" {
		watchInterval := time.Duration(cfg.SeedWatchS) * time.Second
		if watchInterval <= 0 {
			watchInterval = 10 * time.Second
		}
		watcher := corpus.NewSeedWatcher(cfg.SeedsDir, store, watchInterval, sched.Add)
		go watcher.Run(ctx)
	}

	return d.Run(ctx, func() bool { return false })
}

func writeStatsPeriodically(d *driver.Driver, path string, stop <-chan struct{}) {
	if path == "" {
		return
	}
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			writeStatsOnce(d, path)
			return
		case <-ticker.C:
			writeStatsOnce(d, path)
		}
	}
}

func writeStatsOnce(d *driver.Driver, path string) {
	snap := d.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-stats-*")
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}
	tmp.Close()
	os.Rename(tmpPath, path)
}

// seedFromDir admits every regular file under dir as a favored seed.
func seedFromDir(store *corpus.Store, dir string) error {
	if dir == "" {
		return fmt.Errorf("seeds_dir is empty")
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		_, addErr := store.AddSeed(data)
		if addErr != nil && addErr != corpus.ErrDuplicate {
			return addErr
		}
		return nil
	})
}

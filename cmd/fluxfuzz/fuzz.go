package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxfuzz/fluxfuzz/internal/config"
	"github.com/fluxfuzz/fluxfuzz/internal/report"
	"github.com/fluxfuzz/fluxfuzz/internal/statusserver"
	"github.com/fluxfuzz/fluxfuzz/internal/supervisor"
	"github.com/fluxfuzz/fluxfuzz/internal/ui"
	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

func newFuzzCmd() *cobra.Command {
	var configPath string
	var showUI bool
	var statusAddr string

	cmd := &cobra.Command{
		Use:   "fuzz",
		Short: "Run a fuzzing campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("fuzz: resolve own executable: %w", err)
			}

			sup, err := supervisor.New(supervisor.Config{
				BinaryPath: self,
				WorkerArgs: []string{"--config", configPath},
				NumWorkers: cfg.Workers,
				Duration:   time.Duration(cfg.MaxDurationS) * time.Second,
			})
			if err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			if statusAddr != "" {
				srv := statusserver.New(sup)
				go func() {
					if err := srv.Listen(statusAddr); err != nil {
						fmt.Fprintf(os.Stderr, "status server stopped: %v\n", err)
					}
				}()
			}

			if showUI {
				go ui.Run(sup)
			}

			runErr := sup.Run(context.Background(), sigCh)

			final := sup.Snapshot()
			if err := writeFinalReport(cfg, final); err != nil {
				fmt.Fprintf(os.Stderr, "report: %v\n", err)
			}

			return runErr
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fluxfuzz.yaml", "Path to the campaign config (YAML)")
	cmd.Flags().BoolVar(&showUI, "ui", false, "Show the live terminal dashboard")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "Serve live campaign stats at this address (e.g. :9090); empty disables it")

	return cmd
}

// writeFinalReport collects every crash artifact workers persisted
// under cfg.CrashDir and writes a single end-of-campaign JSON report
// alongside it.
func writeFinalReport(cfg *config.Config, stats fuzztypes.SupervisorStats) error {
	if cfg.CrashDir == "" {
		return nil
	}

	r := report.NewReport("fluxfuzz campaign")
	r.Stats = stats

	err := filepath.WalkDir(cfg.CrashDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".json" {
			return err
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		var rec fuzztypes.CrashRecord
		if jsonErr := json.Unmarshal(data, &rec); jsonErr != nil || rec.CrashHash == "" {
			return nil
		}
		r.AddCrash(rec)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scan crash dir: %w", err)
	}

	mgr := report.NewManager(cfg.CrashDir)
	path, err := mgr.Generate(r, "json")
	if err != nil {
		return err
	}
	fmt.Printf("campaign report written to %s (%d crashes, %d unique edges)\n", path, len(r.Crashes), stats.UniqueEdges)
	return nil
}

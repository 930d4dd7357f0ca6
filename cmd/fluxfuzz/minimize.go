package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxfuzz/fluxfuzz/internal/crashdetector"
	"github.com/fluxfuzz/fluxfuzz/internal/executor"
	"github.com/fluxfuzz/fluxfuzz/internal/minimizer"
)

// newMinimizeCmd wraps the delta-debugging minimizer as a stand-alone
// tool: re-run a known-crashing input against argv and shrink it while
// the crash signature is preserved, without needing a whole campaign.
func newMinimizeCmd() *cobra.Command {
	var timeoutMs int
	var budget int

	cmd := &cobra.Command{
		Use:   "minimize [input-file] -- [argv...]",
		Short: "Shrink a crashing input while preserving its crash signature",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath := args[0]
			argv := args[1:]
			if len(argv) > 0 && argv[0] == "--" {
				argv = argv[1:]
			}
			if len(argv) == 0 {
				return fmt.Errorf("minimize: no target argv given after --")
			}

			original, err := os.ReadFile(inputPath)
			if err != nil {
				return err
			}

			exec := executor.New(&executor.Options{Argv: argv, TimeoutMs: timeoutMs})
			detector := crashdetector.New()

			baseline, err := exec.Execute(context.Background(), original)
			if err != nil && baseline == nil {
				return fmt.Errorf("minimize: baseline execution failed: %w", err)
			}
			if !crashdetector.IsCrash(baseline) {
				return fmt.Errorf("minimize: the original input does not crash %s", strings.Join(argv, " "))
			}
			target := detector.Observe(baseline, original)

			tester := func(ctx context.Context, candidate []byte) minimizer.Verdict {
				result, err := exec.Execute(ctx, candidate)
				if err != nil && result == nil {
					return minimizer.NoCrash
				}
				if !crashdetector.IsCrash(result) {
					return minimizer.NoCrash
				}
				probe := detector.Observe(result, candidate)
				if probe != nil && probe.CrashHash == target.CrashHash {
					return minimizer.Preserved
				}
				return minimizer.Changed
			}

			res := minimizer.Minimize(context.Background(), original, tester, budget)
			fmt.Printf("minimized %d bytes -> %d bytes using %d executions\n", len(original), len(res.Data), res.ExecutionsUsed)
			if res.BudgetExceeded {
				fmt.Fprintln(os.Stderr, "warning: execution budget exhausted before a fixed point was reached")
			}
			os.Stdout.Write(res.Data)
			return nil
		},
	}

	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 5000, "Per-execution timeout in milliseconds")
	cmd.Flags().IntVar(&budget, "budget", minimizer.DefaultBudget, "Maximum number of test executions")

	return cmd
}

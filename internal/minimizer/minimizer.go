// Package minimizer implements delta-debugging minimization of a
// crashing input: repeatedly removing chunks (then individual bytes)
// while the crash signature is preserved, with an adaptive chunk count
// and a hard execution budget.
package minimizer

import (
	"context"

	"github.com/panjf2000/ants/v2"
)

// Verdict is the total function the minimizer's "did the candidate
// still crash the same way" check reduces to — replacing exceptions
// for control flow with an explicit result value, per the design note
// on the minimizer's "crash preserved?" question.
type Verdict int

const (
	Preserved Verdict = iota
	Changed
	NoCrash
)

// Tester re-executes candidate and reports whether its crash_hash still
// matches target. It is supplied by the caller (the driver or the
// stand-alone `minimize` CLI subcommand) so this package stays free of
// any dependency on the executor/crashdetector wiring.
type Tester func(ctx context.Context, candidate []byte) Verdict

// DefaultBudget is the default global test budget in executions.
const DefaultBudget = 10000

// Result is the minimizer's outcome: the smallest candidate observed
// to still produce the same crash signature, and how much budget it
// used.
type Result struct {
	Data           []byte
	ExecutionsUsed int
	BudgetExceeded bool
}

// Minimize runs the delta-debugging algorithm against original using
// test, stopping at budget executions (DefaultBudget if zero).
func Minimize(ctx context.Context, original []byte, test Tester, budget int) Result {
	if budget <= 0 {
		budget = DefaultBudget
	}
	candidate := append([]byte(nil), original...)
	used := 0
	n := 2

	for n <= len(candidate) && used < budget {
		chunkLen := (len(candidate) + n - 1) / n
		reduced, consumed, shrank := tryRemoveOneChunk(ctx, candidate, n, chunkLen, test, budget-used)
		used += consumed
		if shrank {
			candidate = reduced
			if n > 2 {
				n--
			}
			continue
		}
		n *= 2
	}

	if used < budget {
		candidate, used = byteLevelZeroingPass(ctx, candidate, test, budget, used)
	}

	return Result{Data: candidate, ExecutionsUsed: used, BudgetExceeded: used >= budget}
}

// tryRemoveOneChunk partitions candidate into n chunks (the last
// absorbing the remainder) and tests removing each in turn, using a
// bounded pool so independent candidates can be tested concurrently.
// It stops and adopts the first chunk whose removal preserves the
// crash signature.
func tryRemoveOneChunk(ctx context.Context, candidate []byte, n, chunkLen int, test Tester, remainingBudget int) ([]byte, int, bool) {
	type attempt struct {
		without []byte
		verdict Verdict
	}

	chunks := partition(len(candidate), n, chunkLen)
	results := make([]attempt, len(chunks))
	used := 0

	pool, err := ants.NewPool(8)
	if err != nil {
		// Fall back to sequential testing if the pool cannot be created;
		// this is a resource-constrained environment, not a spec error.
		for i, c := range chunks {
			if used >= remainingBudget {
				break
			}
			without := without(candidate, c.start, c.end)
			results[i] = attempt{without: without, verdict: test(ctx, without)}
			used++
			if results[i].verdict == Preserved {
				return results[i].without, used, true
			}
		}
		return candidate, used, false
	}
	defer pool.Release()

	done := make(chan int, len(chunks))
	for i, c := range chunks {
		i, c := i, c
		_ = pool.Submit(func() {
			without := without(candidate, c.start, c.end)
			results[i] = attempt{without: without, verdict: test(ctx, without)}
			done <- i
		})
	}
	for range chunks {
		i := <-done
		used++
		if results[i].verdict == Preserved {
			return results[i].without, used, true
		}
		if used >= remainingBudget {
			break
		}
	}
	return candidate, used, false
}

type span struct{ start, end int }

func partition(total, n, chunkLen int) []span {
	var spans []span
	for start := 0; start < total; start += chunkLen {
		end := start + chunkLen
		if end > total {
			end = total
		}
		spans = append(spans, span{start, end})
		if len(spans) == n {
			break
		}
	}
	if len(spans) > 0 {
		spans[len(spans)-1].end = total
	}
	return spans
}

func without(data []byte, start, end int) []byte {
	out := make([]byte, 0, len(data)-(end-start))
	out = append(out, data[:start]...)
	out = append(out, data[end:]...)
	return out
}

// byteLevelZeroingPass tries replacing each byte with 0x00, keeping the
// replacement only if the crash signature is preserved.
func byteLevelZeroingPass(ctx context.Context, candidate []byte, test Tester, budget, used int) ([]byte, int) {
	out := append([]byte(nil), candidate...)
	for i := range out {
		if used >= budget {
			break
		}
		if out[i] == 0x00 {
			continue
		}
		trial := append([]byte(nil), out...)
		trial[i] = 0x00
		verdict := test(ctx, trial)
		used++
		if verdict == Preserved {
			out = trial
		}
	}
	return out, used
}

// Package executor spawns the target executable as a child process,
// feeds it the mutant, enforces a wall-clock timeout and an optional
// memory limit, and captures a bounded stderr tail for sanitizer
// pattern scanning. Grounded in the teacher's options-struct + slog +
// running-counter idiom (internal/requester.Engine), translated from
// outbound HTTP requests to child-process execution.
package executor

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// stderrTailCap is the minimum bounded stderr tail size required for
// sanitizer pattern scanning.
const stderrTailCap = 8 * 1024

// Options configures an Executor.
type Options struct {
	Argv             []string // argv[0] is the target program; "@@" is replaced per-execution
	TimeoutMs        int
	MemoryLimitBytes int64 // 0 disables the cap
	Sanitizers       bool
	RateLimit        int // executions/sec, 0 disables throttling
}

// DefaultOptions mirrors spec.md §6's defaults.
func DefaultOptions() *Options {
	return &Options{
		TimeoutMs:        5000,
		MemoryLimitBytes: 1 << 30,
		Sanitizers:       true,
	}
}

// Executor runs one target process per Execute call.
type Executor struct {
	opts    *Options
	logger  *slog.Logger
	limiter *rate.Limiter

	execCount int64
}

// New builds an Executor from opts (nil uses DefaultOptions).
func New(opts *Options) *Executor {
	if opts == nil {
		opts = DefaultOptions()
	}
	e := &Executor{
		opts:   opts,
		logger: slog.Default().With(slog.String("component", "executor")),
	}
	if opts.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit)
	}
	return e
}

// Execute spawns argv (with "@@" substituted for a temp file holding
// mutant, if present), feeds mutant on stdin otherwise, waits up to
// timeout_ms, and returns a normalized ExecutionResult.
func (e *Executor) Execute(ctx context.Context, mutant []byte) (*fuzztypes.ExecutionResult, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	argv, cleanup, useStdin, err := e.prepareArgv(mutant)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	timeout := time.Duration(e.opts.TimeoutMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if e.opts.Sanitizers {
		cmd.Env = append(os.Environ(),
			"ASAN_OPTIONS=abort_on_error=1:detect_leaks=0",
			"MSAN_OPTIONS=abort_on_error=1:detect_leaks=0",
			"UBSAN_OPTIONS=abort_on_error=1:detect_leaks=0",
		)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = newTailWriter(&stderr, stderrTailCap)

	if useStdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		go func() {
			stdin.Write(mutant)
			stdin.Close()
		}()
	}

	start := time.Now()
	spawnErr := cmd.Start()
	if spawnErr != nil {
		return &fuzztypes.ExecutionResult{SpawnError: spawnErr}, spawnErr
	}

	if e.opts.MemoryLimitBytes > 0 {
		e.capMemory(cmd.Process.Pid)
	}

	waitErr := cmd.Wait()
	wall := time.Since(start)
	atomic.AddInt64(&e.execCount, 1)

	result := &fuzztypes.ExecutionResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		WallTime: wall,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd.Process.Pid)
		result.TimedOut = true
		return result, nil
	}

	if waitErr == nil {
		result.ExitedNormally = true
		result.ExitCode = 0
		return result, nil
	}

	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		return result, waitErr
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	if status.Signaled() {
		sig := int(status.Signal())
		result.Signal = &sig
		result.ExitCode = -sig
	} else {
		code := status.ExitStatus()
		result.ExitCode = code
		// Negative exit codes on platforms that report them as -signal
		// are normalized: signal = |exit_code| iff exit_code < 0.
		if code < 0 {
			sig := -code
			result.Signal = &sig
		}
	}
	return result, nil
}

// prepareArgv substitutes the literal "@@" placeholder with a temp file
// path holding mutant, if present in argv; otherwise the caller is told
// to feed mutant on stdin.
func (e *Executor) prepareArgv(mutant []byte) (argv []string, cleanup func(), useStdin bool, err error) {
	argv = append([]string(nil), e.opts.Argv...)
	cleanup = func() {}

	found := false
	for i, a := range argv {
		if a == "@@" {
			found = true
			f, err := os.CreateTemp("", "fluxfuzz-mutant-*")
			if err != nil {
				return nil, cleanup, false, err
			}
			if _, err := f.Write(mutant); err != nil {
				f.Close()
				os.Remove(f.Name())
				return nil, cleanup, false, err
			}
			f.Close()
			argv[i] = f.Name()
			prevCleanup := cleanup
			path := f.Name()
			cleanup = func() {
				prevCleanup()
				os.Remove(path)
			}
		}
	}
	return argv, cleanup, !found, nil
}

func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// tailWriter keeps only the last cap bytes written to it, matching the
// bounded-tail contract without buffering unbounded output in memory —
// grounded on the teacher's internal/memory/stream.go streaming idiom.
type tailWriter struct {
	buf *bytes.Buffer
	cap int
}

func newTailWriter(buf *bytes.Buffer, capBytes int) *tailWriter {
	return &tailWriter{buf: buf, cap: capBytes}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if w.buf.Len() > w.cap {
		excess := w.buf.Len() - w.cap
		w.buf.Next(excess)
	}
	return n, err
}

// capMemory applies an address-space rlimit to the just-spawned child
// via prlimit(2), adapted from internal/memory/monitor.go's resource
// sampling idiom but enforced preventively instead of by polling RSS.
// Failure to apply the cap is a liveness risk, not a correctness
// issue, per spec.md §5: it is logged and otherwise ignored.
func (e *Executor) capMemory(pid int) {
	limit := uint64(e.opts.MemoryLimitBytes)
	rlimit := unix.Rlimit{Cur: limit, Max: limit}
	if err := unix.Prlimit(pid, unix.RLIMIT_AS, &rlimit, nil); err != nil {
		e.logger.Warn("failed to apply memory limit", slog.Int("pid", pid), slog.String("error", err.Error()))
	}
}

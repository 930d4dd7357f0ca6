package crashdetector

import (
	"testing"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

func segv() int { s := 11; return s }

func TestClassificationOrderSanitizerBeatsSignal(t *testing.T) {
	sig := 11
	result := &fuzztypes.ExecutionResult{
		Signal: &sig,
		Stderr: []byte("==1234==ERROR: AddressSanitizer: heap-buffer-overflow"),
	}
	if got := classifyType(result); got != fuzztypes.CrashASAN {
		t.Fatalf("expected ASAN to win over raw signal, got %v", got)
	}
}

func TestClassificationTimeoutIsHang(t *testing.T) {
	result := &fuzztypes.ExecutionResult{TimedOut: true}
	if got := classifyType(result); got != fuzztypes.CrashHANG {
		t.Fatalf("expected HANG, got %v", got)
	}
}

func TestCrashDedupMergesIdenticalSignature(t *testing.T) {
	d := New()
	sig := 11
	r1 := &fuzztypes.ExecutionResult{Signal: &sig, Stderr: []byte("#0 0x1 in foo a.c:1\n#1 0x2 in bar b.c:2")}
	first := d.Observe(r1, []byte("AAAA"))
	if first.Count != 1 {
		t.Fatalf("expected count 1 on first observation, got %d", first.Count)
	}
	t1 := first.LastSeen

	r2 := &fuzztypes.ExecutionResult{Signal: &sig, Stderr: []byte("#0 0x1 in foo a.c:1\n#1 0x2 in bar b.c:2")}
	second := d.Observe(r2, []byte("BBBB"))
	if second.Count != 2 {
		t.Fatalf("expected count 2 on second identical crash, got %d", second.Count)
	}
	if second.LastSeen.Before(t1) {
		t.Fatalf("last_seen must advance, not regress")
	}
	if first.CrashHash != second.CrashHash {
		t.Fatalf("identical signatures must share a crash_hash")
	}
}

func TestExploitabilityRating(t *testing.T) {
	cases := []struct {
		crashType fuzztypes.CrashType
		stderr    string
		want      fuzztypes.Exploitability
	}{
		{fuzztypes.CrashASAN, "heap-use-after-free", fuzztypes.ExploitHigh},
		{fuzztypes.CrashASAN, "global-buffer-overflow", fuzztypes.ExploitMedium},
		{fuzztypes.CrashSEGV, "faulting address in the stack region", fuzztypes.ExploitHigh},
		{fuzztypes.CrashSEGV, "faulting address 0xdead", fuzztypes.ExploitMedium},
		{fuzztypes.CrashABRT, "", fuzztypes.ExploitLow},
		{fuzztypes.CrashHANG, "", fuzztypes.ExploitLow},
	}
	for _, c := range cases {
		if got := rateExploitability(c.crashType, c.stderr); got != c.want {
			t.Errorf("rateExploitability(%v, %q) = %v, want %v", c.crashType, c.stderr, got, c.want)
		}
	}
}

func TestExtractStackTraceSanitizerFormat(t *testing.T) {
	stderr := "==1==ERROR\n#0 0x55a1 in foo /src/a.c:10\n#1 0x55a2 in bar /src/b.c:20\n"
	frames := ExtractStackTrace(stderr)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Function != "foo" || frames[0].Line != 10 {
		t.Fatalf("unexpected first frame: %+v", frames[0])
	}
}

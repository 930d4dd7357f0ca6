package crashdetector

import (
	"strings"
	"testing"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

func TestAttachFuzzyDigestTooShortYieldsEmpty(t *testing.T) {
	if got := AttachFuzzyDigest("short"); got != "" {
		t.Fatalf("expected no digest for a short trace, got %q", got)
	}
}

func TestAttachFuzzyDigestStableForIdenticalInput(t *testing.T) {
	trace := strings.Repeat("foo bar baz qux frame_one frame_two frame_three ", 5)
	a := AttachFuzzyDigest(trace)
	b := AttachFuzzyDigest(trace)
	if a == "" {
		t.Fatalf("expected a non-empty digest for a long trace")
	}
	if a != b {
		t.Fatalf("expected a stable digest for identical input, got %q vs %q", a, b)
	}
}

func TestSimilarClusterGroupsCloseDigests(t *testing.T) {
	traceA := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta ", 5)
	traceB := traceA + "iota"
	traceC := strings.Repeat("unrelated stack trace content entirely different words ", 5)

	digests := map[string]string{
		"hashA": AttachFuzzyDigest(traceA),
		"hashB": AttachFuzzyDigest(traceB),
		"hashC": AttachFuzzyDigest(traceC),
	}

	clusters := SimilarCluster(digests, 200)
	found := false
	for _, members := range clusters {
		if contains(members, "hashA") && contains(members, "hashB") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected near-identical traces A and B to cluster together: %+v", clusters)
	}
}

func TestObservePopulatesTLSHDigestForLongStackTrace(t *testing.T) {
	d := New()
	sig := 11
	stderr := "#0 0x1 in handle_request server.c:100\n" +
		"#1 0x2 in dispatch router.c:200\n" +
		"#2 0x3 in process_input parser.c:300\n" +
		"#3 0x4 in main main.c:10\n"
	result := &fuzztypes.ExecutionResult{Signal: &sig, Stderr: []byte(stderr)}

	record := d.Observe(result, []byte("AAAA"))
	if record.TLSHDigest == "" {
		t.Fatalf("expected Observe to populate TLSHDigest for a sizeable stack trace")
	}
}

func TestDetectorClustersIncludesObservedCrash(t *testing.T) {
	d := New()
	sig := 11
	stderr := "#0 0x1 in handle_request server.c:100\n" +
		"#1 0x2 in dispatch router.c:200\n" +
		"#2 0x3 in process_input parser.c:300\n" +
		"#3 0x4 in main main.c:10\n"
	result := &fuzztypes.ExecutionResult{Signal: &sig, Stderr: []byte(stderr)}
	record := d.Observe(result, []byte("AAAA"))

	clusters := d.Clusters(40)
	if _, ok := clusters[record.CrashHash]; !ok {
		t.Fatalf("expected the observed crash_hash to appear in its own cluster: %+v", clusters)
	}
}

func contains(xs []string, target string) bool {
	for _, x := range xs {
		if x == target {
			return true
		}
	}
	return false
}

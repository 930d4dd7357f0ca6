// Package crashdetector classifies an ExecutionResult into a crash
// signature, deduplicates it, rates its exploitability, and carries it
// through the observed->deduped->classified steps of the crash state
// machine; minimization and persistence are left to the caller. Grounded on the teacher's internal/analyzer.Analyzer
// classification pipeline, whose first-match-wins classify() ordering
// is the direct analogue of spec.md §4.6's classification order.
package crashdetector

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// signalNames maps the five signals this fuzzer distinguishes to their
// crash type, per spec.md §4.6.
var signalNames = map[int]fuzztypes.CrashType{
	11: fuzztypes.CrashSEGV,
	6:  fuzztypes.CrashABRT,
	4:  fuzztypes.CrashILL,
	8:  fuzztypes.CrashFPE,
	7:  fuzztypes.CrashBUS,
}

var sanitizerPatterns = []struct {
	marker string
	kind   fuzztypes.CrashType
}{
	{"AddressSanitizer", fuzztypes.CrashASAN},
	{"MemorySanitizer", fuzztypes.CrashMSAN},
	{"UndefinedBehaviorSanitizer", fuzztypes.CrashUBSAN},
}

// Detector holds the accumulated, deduplicated set of crash records for
// one campaign.
type Detector struct {
	mu      sync.Mutex
	records map[string]*fuzztypes.CrashRecord
}

// New returns an empty Detector.
func New() *Detector {
	return &Detector{records: make(map[string]*fuzztypes.CrashRecord)}
}

// IsCrash reports whether result represents a crash worth running
// through the state machine at all (HANG included, per spec.md §4.6
// step 1's classification order: sanitizer -> signal -> timeout ->
// none).
func IsCrash(result *fuzztypes.ExecutionResult) bool {
	return classifyType(result) != ""
}

func classifyType(result *fuzztypes.ExecutionResult) fuzztypes.CrashType {
	stderr := string(result.Stderr)
	for _, p := range sanitizerPatterns {
		if strings.Contains(stderr, p.marker) {
			return p.kind
		}
	}
	if result.Signal != nil {
		if kind, ok := signalNames[*result.Signal]; ok {
			return kind
		}
	}
	if result.TimedOut {
		return fuzztypes.CrashHANG
	}
	return ""
}

// Observe runs result through the observed->deduped->classified steps
// and returns the (possibly just-updated) crash record, or nil if result
// was not a crash at all. It does not minimize or persist the record.
func (d *Detector) Observe(result *fuzztypes.ExecutionResult, inputBytes []byte) *fuzztypes.CrashRecord {
	crashType := classifyType(result)
	if crashType == "" {
		return nil
	}

	frames := ExtractStackTrace(string(result.Stderr))
	hash := dedupHash(crashType, result.Signal, frames, result.Stderr)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if existing, ok := d.records[hash]; ok {
		// observed -> deduped: already known, bump count/last_seen, stop.
		existing.Count++
		existing.LastSeen = now
		return existing
	}

	bucket := string(crashType)
	if result.Signal != nil {
		bucket += "/" + itoa(*result.Signal)
	}

	// deduped -> classified
	record := &fuzztypes.CrashRecord{
		CrashHash:      hash,
		BucketID:       bucket,
		CrashType:      crashType,
		Exploitability: rateExploitability(crashType, stderrString(result)),
		SignalNumber:   result.Signal,
		ExitCode:       result.ExitCode,
		FirstSeen:      now,
		LastSeen:       now,
		Count:          1,
		InputSize:      len(inputBytes),
		StackTrace:     frames,
		StderrTail:     stderrString(result),
		InputBytes:     inputBytes,
		TLSHDigest:     AttachFuzzyDigest(stackTraceText(frames, stderrString(result))),
	}
	d.records[hash] = record
	return record
}

func stderrString(result *fuzztypes.ExecutionResult) string {
	return string(result.Stderr)
}

// stackTraceText renders the text AttachFuzzyDigest hashes: the
// extracted frames (function, file:line) when present, the raw stderr
// tail otherwise — the same fallback dedupHash uses for its own
// top_5_frame_functions input.
func stackTraceText(frames []fuzztypes.StackFrame, stderr string) string {
	if len(frames) == 0 {
		return stderr
	}
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(f.Function)
		b.WriteByte(' ')
		b.WriteString(f.File)
		b.WriteByte(':')
		b.WriteString(itoa(f.Line))
		b.WriteByte('\n')
	}
	return b.String()
}

// Clusters groups every currently-known crash record by TLSH fuzzy-hash
// proximity, for presenting "likely the same root cause" groupings
// alongside the exact crash_hash buckets.
func (d *Detector) Clusters(maxDistance int) map[string][]string {
	d.mu.Lock()
	digests := make(map[string]string, len(d.records))
	for hash, rec := range d.records {
		digests[hash] = rec.TLSHDigest
	}
	d.mu.Unlock()
	return SimilarCluster(digests, maxDistance)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// dedupHash computes crash_hash = trunc16(sha256(crash_type || signal
// || top_5_frame_functions)), falling back to
// trunc16(sha256(crash_type || signal || stderr_tail)) when no frames
// are available.
func dedupHash(crashType fuzztypes.CrashType, signal *int, frames []fuzztypes.StackFrame, stderr []byte) string {
	var b strings.Builder
	b.WriteString(string(crashType))
	b.WriteByte('|')
	if signal != nil {
		b.WriteString(itoa(*signal))
	}
	b.WriteByte('|')

	if len(frames) > 0 {
		n := len(frames)
		if n > 5 {
			n = 5
		}
		for _, f := range frames[:n] {
			b.WriteString(f.Function)
			b.WriteByte(';')
		}
	} else {
		b.Write(stderr)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

var stackHeapUAF = regexp.MustCompile(`heap-use-after-free`)
var stackHeapOverflow = regexp.MustCompile(`heap-buffer-overflow`)
var stackStackOverflow = regexp.MustCompile(`stack-buffer-overflow`)
var stackToken = regexp.MustCompile(`\bstack\b`)

// rateExploitability implements spec.md §4.6 step 4's rating rules.
func rateExploitability(crashType fuzztypes.CrashType, stderr string) fuzztypes.Exploitability {
	switch crashType {
	case fuzztypes.CrashASAN:
		if stackHeapUAF.MatchString(stderr) || stackHeapOverflow.MatchString(stderr) || stackStackOverflow.MatchString(stderr) {
			return fuzztypes.ExploitHigh
		}
		return fuzztypes.ExploitMedium
	case fuzztypes.CrashSEGV:
		if stackToken.MatchString(stderr) {
			return fuzztypes.ExploitHigh
		}
		return fuzztypes.ExploitMedium
	case fuzztypes.CrashBUS:
		return fuzztypes.ExploitMedium
	case fuzztypes.CrashABRT, fuzztypes.CrashILL, fuzztypes.CrashFPE, fuzztypes.CrashHANG:
		return fuzztypes.ExploitLow
	case fuzztypes.CrashMSAN, fuzztypes.CrashUBSAN:
		return fuzztypes.ExploitMedium
	default:
		return fuzztypes.ExploitNone
	}
}

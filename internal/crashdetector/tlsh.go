package crashdetector

import (
	"github.com/glaslos/tlsh"
)

// AttachFuzzyDigest computes a secondary, non-authoritative TLSH fuzzy
// hash of the stack trace text and stores it on the record as
// TLSHDigest. This clusters near-duplicate crashes whose stack traces
// differ only in offsets (e.g. ASLR-shifted addresses) without
// altering CrashHash's exact-match dedup semantics — an enrichment
// adapted from internal/analyzer/tlsh.go, never a replacement for the
// required exact hash.
func AttachFuzzyDigest(traceText string) string {
	if len(traceText) < 50 {
		// TLSH requires a minimum amount of input entropy/length to
		// produce a meaningful digest; short traces are left unset.
		return ""
	}
	h, err := tlsh.HashBytes([]byte(traceText))
	if err != nil {
		return ""
	}
	return h.String()
}

// SimilarCluster groups crash records whose TLSH digests are within
// maxDistance of each other, used to present "likely the same root
// cause" groupings alongside the exact crash_hash buckets.
func SimilarCluster(digests map[string]string, maxDistance int) map[string][]string {
	clusters := make(map[string][]string)
	assigned := make(map[string]bool)

	for hashA, digestA := range digests {
		if assigned[hashA] || digestA == "" {
			continue
		}
		a, err := tlsh.ParseStringToTlsh(digestA)
		if err != nil {
			continue
		}
		cluster := []string{hashA}
		assigned[hashA] = true
		for hashB, digestB := range digests {
			if hashA == hashB || assigned[hashB] || digestB == "" {
				continue
			}
			b, err := tlsh.ParseStringToTlsh(digestB)
			if err != nil {
				continue
			}
			if a.Diff(b) <= maxDistance {
				cluster = append(cluster, hashB)
				assigned[hashB] = true
			}
		}
		clusters[hashA] = cluster
	}
	return clusters
}

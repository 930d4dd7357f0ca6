package driver

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// fuzzyClusterMaxDistance is the TLSH diff threshold under which two
// crash records are considered the same root cause for clustering
// purposes; well below glaslos/tlsh's own "likely related" guidance.
const fuzzyClusterMaxDistance = 40

// persistCrash writes record's metadata as <dir>/<crash_hash>.json, the
// triggering input as <crash_hash>.input, the minimized input (when set)
// as <crash_hash>.min, and the stderr tail as <crash_hash>.stderr,
// matching spec.md §6's crash artifact layout.
func persistCrash(dir string, record *fuzztypes.CrashRecord) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Default().Warn("crash dir creation failed", slog.String("error", err.Error()))
		return
	}

	meta, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		slog.Default().Warn("crash record marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := os.WriteFile(filepath.Join(dir, record.CrashHash+".json"), meta, 0o644); err != nil {
		slog.Default().Warn("crash record write failed", slog.String("error", err.Error()))
	}

	artifacts := map[string][]byte{
		".input":  record.InputBytes,
		".stderr": []byte(record.StderrTail),
	}
	if len(record.MinimizedBytes) > 0 {
		artifacts[".min"] = record.MinimizedBytes
	}
	for ext, payload := range artifacts {
		if err := os.WriteFile(filepath.Join(dir, record.CrashHash+ext), payload, 0o644); err != nil {
			slog.Default().Warn("crash artifact write failed", slog.String("error", err.Error()))
		}
	}
}

// persistClusters recomputes the fuzzy-hash clustering over every crash
// record the detector has seen so far and writes it as clusters.json
// alongside the individual crash artifacts.
func persistClusters(dir string, clusters map[string][]string) {
	if dir == "" {
		return
	}
	data, err := json.MarshalIndent(clusters, "", "  ")
	if err != nil {
		slog.Default().Warn("cluster marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "clusters.json"), data, 0o644); err != nil {
		slog.Default().Warn("cluster write failed", slog.String("error", err.Error()))
	}
}

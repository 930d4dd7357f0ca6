// Package fuzztypes holds the data structures shared across the fuzzer's
// components: corpus entries, crash records, execution results, and the
// wire records written to disk or exchanged between workers.
package fuzztypes

import "time"

// CrashType is the first-match-wins classification of a crashing run.
type CrashType string

const (
	CrashSEGV  CrashType = "SEGV"
	CrashABRT  CrashType = "ABRT"
	CrashILL   CrashType = "ILL"
	CrashFPE   CrashType = "FPE"
	CrashBUS   CrashType = "BUS"
	CrashHANG  CrashType = "HANG"
	CrashASAN  CrashType = "ASAN"
	CrashMSAN  CrashType = "MSAN"
	CrashUBSAN CrashType = "UBSAN"
)

// Exploitability is the coarse severity rating assigned to a crash.
type Exploitability string

const (
	ExploitHigh   Exploitability = "HIGH"
	ExploitMedium Exploitability = "MEDIUM"
	ExploitLow    Exploitability = "LOW"
	ExploitNone   Exploitability = "NONE"
)

// MutationStage identifies which stage of the mutation engine produced
// a mutant. Used as the key into the adaptive strategy weight map.
type MutationStage string

const (
	StageDeterministic MutationStage = "deterministic"
	StageHavoc         MutationStage = "havoc"
	StageDictionary    MutationStage = "dictionary"
	StageSplice        MutationStage = "splice"
	StageProtocol      MutationStage = "protocol"
)

// CorpusEntry is one admitted input and its provenance/bookkeeping.
type CorpusEntry struct {
	ID             string    `json:"id"`
	Data           []byte    `json:"-"`
	ParentID       string    `json:"parent,omitempty"`
	Depth          int       `json:"depth"`
	CoverageHash   uint64    `json:"cov_hash"`
	NewEdges       int       `json:"new_edges"`
	ExecCount      int64     `json:"exec_count"`
	LastSelectedAt time.Time `json:"last_selected_at"`
	Favored        bool      `json:"favored"`
	Size           int       `json:"size"`
	DiscoveredAt   time.Time `json:"discovered_at"`
}

// StackFrame is one parsed frame of a crash's stack trace.
type StackFrame struct {
	Addr     string `json:"addr,omitempty"`
	Function string `json:"function,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Offset   string `json:"offset,omitempty"`
}

// CrashRecord is the persisted, deduplicated record of one crash
// signature. Field names match the on-disk JSON contract exactly.
type CrashRecord struct {
	CrashHash      string         `json:"crash_hash"`
	BucketID       string         `json:"bucket_id"`
	CrashType      CrashType      `json:"crash_type"`
	Exploitability Exploitability `json:"exploitability"`
	SignalNumber   *int           `json:"signal_number"`
	ExitCode       int            `json:"exit_code"`
	FirstSeen      time.Time      `json:"first_seen"`
	LastSeen       time.Time      `json:"last_seen"`
	Count          int64          `json:"count"`
	InputSize      int            `json:"input_size"`
	MinimizedSize  *int           `json:"minimized_size"`
	StackTrace     []StackFrame   `json:"stack_trace"`
	StderrTail     string         `json:"stderr_tail"`

	// TLSHDigest is a secondary, non-authoritative fuzzy-hash signature
	// used to cluster near-duplicate crashes that differ only in
	// offsets. Never substitutes for CrashHash equality.
	TLSHDigest string `json:"tlsh_digest,omitempty"`

	InputBytes     []byte `json:"-"`
	MinimizedBytes []byte `json:"-"`
}

// ExecutionResult is what the Executor returns for one run of the target.
type ExecutionResult struct {
	ExitedNormally bool
	ExitCode       int
	Signal         *int
	Stdout         []byte
	Stderr         []byte
	WallTime       time.Duration
	TimedOut       bool
	SpawnError     error
}

// SyncedInput is one entry read back from a peer's queue directory.
type SyncedInput struct {
	Data         []byte
	CoverageHash uint64
	SourceWorker string
	Timestamp    time.Time
}

// WorkerStats is the per-worker snapshot written to and read from the
// atomically-rewritten stats file the Supervisor polls.
type WorkerStats struct {
	WorkerID       string    `json:"worker_id"`
	Executions     int64     `json:"executions"`
	Crashes        int64     `json:"crashes"`
	Hangs          int64     `json:"hangs"`
	CoverageEdges  []uint64  `json:"coverage_edges"`
	LastUpdate     float64   `json:"last_update"`
	ExecsPerSecond float64   `json:"execs_per_second"`
	CorpusSize     int       `json:"corpus_size"`
	Inactive       bool      `json:"-"`
	StartedAt      time.Time `json:"-"`
}

// SupervisorStats is the aggregate view across all active workers,
// rendered by the live status surfaces (internal/ui, internal/statusserver).
type SupervisorStats struct {
	TotalExecutions int64         `json:"total_executions"`
	TotalCrashes    int64         `json:"total_crashes"`
	TotalHangs      int64         `json:"total_hangs"`
	UniqueEdges     int           `json:"unique_edges"`
	ExecsPerSecond  float64       `json:"execs_per_second"`
	Uptime          time.Duration `json:"uptime"`
	Workers         []WorkerStats `json:"workers"`
}

// Package report generates an end-of-campaign summary: aggregate
// stats plus every distinct crash found, in the format requested by
// the CLI. Grounded on the teacher's Report/Manager/Generator shape,
// generalized from per-request HTTP anomalies to per-signature crash
// records.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// Report is the end-of-campaign artifact: the final aggregate stats
// snapshot plus every crash signature found, sorted worst-first by
// exploitability when a generator renders it.
type Report struct {
	Title       string                    `json:"title"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Duration    time.Duration             `json:"duration"`
	Stats       fuzztypes.SupervisorStats `json:"stats"`
	Crashes     []fuzztypes.CrashRecord   `json:"crashes"`
}

// NewReport creates an empty report for a campaign titled title.
func NewReport(title string) *Report {
	return &Report{Title: title, GeneratedAt: time.Now()}
}

// AddCrash appends one crash record to the report.
func (r *Report) AddCrash(c fuzztypes.CrashRecord) {
	r.Crashes = append(r.Crashes, c)
}

// CountByExploitability returns how many crashes fall in each
// exploitability bucket.
func (r *Report) CountByExploitability() map[fuzztypes.Exploitability]int {
	counts := make(map[fuzztypes.Exploitability]int)
	for _, c := range r.Crashes {
		counts[c.Exploitability]++
	}
	return counts
}

// Generator renders a Report to w.
type Generator interface {
	Generate(report *Report, w io.Writer) error
	Extension() string
}

// Manager dispatches to registered generators and writes their output
// under outputDir.
type Manager struct {
	generators map[string]Generator
	outputDir  string
}

// NewManager creates a Manager with the JSON generator registered by
// default; callers may RegisterGenerator additional formats.
func NewManager(outputDir string) *Manager {
	m := &Manager{generators: make(map[string]Generator), outputDir: outputDir}
	m.RegisterGenerator("json", &JSONGenerator{Indent: true})
	return m
}

// RegisterGenerator adds or replaces the generator for format.
func (m *Manager) RegisterGenerator(format string, gen Generator) {
	m.generators[format] = gen
}

// Generate renders report in format and writes it under outputDir,
// returning the path written.
func (m *Manager) Generate(report *Report, format string) (string, error) {
	gen, ok := m.generators[format]
	if !ok {
		return "", fmt.Errorf("report: unknown format %q", format)
	}
	if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("report: create output dir: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	name := fmt.Sprintf("report_%s.%s", timestamp, gen.Extension())
	path := filepath.Join(m.outputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()

	if err := gen.Generate(report, f); err != nil {
		return "", fmt.Errorf("report: generate %s: %w", format, err)
	}
	return path, nil
}

// WriteToWriter renders report in format directly to w, skipping disk.
func (m *Manager) WriteToWriter(report *Report, format string, w io.Writer) error {
	gen, ok := m.generators[format]
	if !ok {
		return fmt.Errorf("report: unknown format %q", format)
	}
	return gen.Generate(report, w)
}

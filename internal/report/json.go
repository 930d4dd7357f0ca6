// Package report provides JSON report generation.
package report

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// JSONGenerator renders a Report as JSON, crashes sorted worst-first by
// exploitability, with the exploitability breakdown alongside them —
// the concrete encoding of the ordering Report's own doc comment
// promises, rather than a plain field-order dump of the struct.
type JSONGenerator struct {
	Indent bool
}

// jsonDocument is the on-disk shape: Report's fields plus the derived
// exploitability counts, crashes pre-sorted worst-first.
type jsonDocument struct {
	*Report
	ExploitabilityCounts map[fuzztypes.Exploitability]int `json:"exploitability_counts"`
}

var exploitabilityRank = map[fuzztypes.Exploitability]int{
	fuzztypes.ExploitHigh:   0,
	fuzztypes.ExploitMedium: 1,
	fuzztypes.ExploitLow:    2,
	fuzztypes.ExploitNone:   3,
}

// Generate generates a JSON report
func (g *JSONGenerator) Generate(report *Report, w io.Writer) error {
	doc := jsonDocument{
		Report:               sortedByExploitability(report),
		ExploitabilityCounts: report.CountByExploitability(),
	}

	encoder := json.NewEncoder(w)
	if g.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(doc)
}

// sortedByExploitability returns a copy of report with Crashes ordered
// worst-first, leaving the caller's slice untouched.
func sortedByExploitability(report *Report) *Report {
	sorted := *report
	sorted.Crashes = append([]fuzztypes.CrashRecord(nil), report.Crashes...)
	sort.SliceStable(sorted.Crashes, func(i, j int) bool {
		return exploitabilityRank[sorted.Crashes[i].Exploitability] < exploitabilityRank[sorted.Crashes[j].Exploitability]
	})
	return &sorted
}

// Extension returns the file extension
func (g *JSONGenerator) Extension() string {
	return "json"
}

// GenerateBytes generates JSON report as bytes
func (g *JSONGenerator) GenerateBytes(report *Report) ([]byte, error) {
	doc := jsonDocument{
		Report:               sortedByExploitability(report),
		ExploitabilityCounts: report.CountByExploitability(),
	}
	if g.Indent {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

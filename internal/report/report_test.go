package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

func TestAddCrashAndCountByExploitability(t *testing.T) {
	r := NewReport("test campaign")
	r.AddCrash(fuzztypes.CrashRecord{CrashHash: "a", Exploitability: fuzztypes.ExploitHigh})
	r.AddCrash(fuzztypes.CrashRecord{CrashHash: "b", Exploitability: fuzztypes.ExploitHigh})
	r.AddCrash(fuzztypes.CrashRecord{CrashHash: "c", Exploitability: fuzztypes.ExploitLow})

	counts := r.CountByExploitability()
	if counts[fuzztypes.ExploitHigh] != 2 {
		t.Fatalf("expected 2 HIGH crashes, got %d", counts[fuzztypes.ExploitHigh])
	}
	if counts[fuzztypes.ExploitLow] != 1 {
		t.Fatalf("expected 1 LOW crash, got %d", counts[fuzztypes.ExploitLow])
	}
}

func TestManagerWriteToWriterJSON(t *testing.T) {
	m := NewManager(t.TempDir())
	r := NewReport("test campaign")
	r.AddCrash(fuzztypes.CrashRecord{CrashHash: "deadbeef", CrashType: fuzztypes.CrashSEGV})

	var buf bytes.Buffer
	if err := m.WriteToWriter(r, "json", &buf); err != nil {
		t.Fatalf("WriteToWriter: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Crashes) != 1 || decoded.Crashes[0].CrashHash != "deadbeef" {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
}

func TestJSONGeneratorSortsCrashesWorstFirst(t *testing.T) {
	r := NewReport("test campaign")
	r.AddCrash(fuzztypes.CrashRecord{CrashHash: "low", Exploitability: fuzztypes.ExploitLow})
	r.AddCrash(fuzztypes.CrashRecord{CrashHash: "high", Exploitability: fuzztypes.ExploitHigh})
	r.AddCrash(fuzztypes.CrashRecord{CrashHash: "medium", Exploitability: fuzztypes.ExploitMedium})

	gen := &JSONGenerator{Indent: true}
	data, err := gen.GenerateBytes(r)
	if err != nil {
		t.Fatalf("GenerateBytes: %v", err)
	}

	var decoded struct {
		Crashes              []fuzztypes.CrashRecord          `json:"crashes"`
		ExploitabilityCounts map[fuzztypes.Exploitability]int `json:"exploitability_counts"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Crashes) != 3 {
		t.Fatalf("expected 3 crashes, got %d", len(decoded.Crashes))
	}
	if decoded.Crashes[0].CrashHash != "high" || decoded.Crashes[1].CrashHash != "medium" || decoded.Crashes[2].CrashHash != "low" {
		t.Fatalf("expected crashes sorted worst-first, got %+v", decoded.Crashes)
	}
	if decoded.ExploitabilityCounts[fuzztypes.ExploitHigh] != 1 {
		t.Fatalf("expected exploitability_counts to report 1 HIGH crash, got %+v", decoded.ExploitabilityCounts)
	}

	// Original report's Crashes slice must be untouched by sorting.
	if r.Crashes[0].CrashHash != "low" {
		t.Fatalf("expected the original report's crash order to be left alone, got %+v", r.Crashes)
	}
}

func TestManagerGenerateWritesFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	path, err := m.Generate(NewReport("test campaign"), "json")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if path == "" {
		t.Fatalf("expected a non-empty output path")
	}
}

func TestManagerUnknownFormatErrors(t *testing.T) {
	m := NewManager(t.TempDir())
	if _, err := m.Generate(NewReport("x"), "xml"); err == nil {
		t.Fatalf("expected an error for an unregistered format")
	}
}

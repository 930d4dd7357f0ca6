package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

type fakeSource struct {
	snap fuzztypes.SupervisorStats
}

func (f *fakeSource) Snapshot() fuzztypes.SupervisorStats { return f.snap }

func TestDashboardViewBeforeWindowSizeShowsLoading(t *testing.T) {
	d := NewDashboard(&fakeSource{})
	if got := d.View(); got != "Loading..." {
		t.Fatalf("expected loading placeholder before a WindowSizeMsg, got %q", got)
	}
}

func TestDashboardTickPullsSnapshot(t *testing.T) {
	src := &fakeSource{snap: fuzztypes.SupervisorStats{
		TotalExecutions: 42,
		Workers: []fuzztypes.WorkerStats{
			{WorkerID: "worker_a", Executions: 42},
		},
	}}
	d := NewDashboard(src)
	model, _ := d.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	d = model.(*Dashboard)

	model, _ = d.Update(tickMsg(time.Now()))
	d = model.(*Dashboard)

	view := d.View()
	if !strings.Contains(view, "worker_a") {
		t.Fatalf("expected the polled worker to appear in the view, got:\n%s", view)
	}
}

func TestDashboardQuitOnQ(t *testing.T) {
	d := NewDashboard(&fakeSource{})
	_, cmd := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected a quit command on 'q'")
	}
}

func TestCrashCountLabelSeverityOrdering(t *testing.T) {
	clean := crashCountLabel(fuzztypes.WorkerStats{Crashes: 0, Hangs: 0})
	hung := crashCountLabel(fuzztypes.WorkerStats{Crashes: 0, Hangs: 3})
	crashed := crashCountLabel(fuzztypes.WorkerStats{Crashes: 2, Hangs: 3})

	if clean == hung || hung == crashed || clean == crashed {
		t.Fatalf("expected distinct styling per severity tier, got clean=%q hung=%q crashed=%q", clean, hung, crashed)
	}
	for _, got := range []string{clean, hung, crashed} {
		if !strings.Contains(got, "crashes=") {
			t.Fatalf("expected the crash count label to render the count, got %q", got)
		}
	}
}

// Package ui provides a TUI dashboard for a running fuzzing campaign.
// Grounded on the teacher's bubbletea Model shape (tick-driven Update,
// header/panel/footer View composition) with the crawl-progress and
// HTTP-anomaly panels replaced by campaign stats (executions, edges,
// crashes) per worker.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// StatsSource is anything the dashboard can poll for a campaign
// snapshot; satisfied by *supervisor.Supervisor without this package
// importing it directly.
type StatsSource interface {
	Snapshot() fuzztypes.SupervisorStats
}

// Dashboard is the bubbletea model for the live campaign view.
type Dashboard struct {
	source StatsSource

	width, height int
	started       time.Time
	snap          fuzztypes.SupervisorStats
}

// NewDashboard builds a dashboard that polls source on every tick.
func NewDashboard(source StatsSource) *Dashboard {
	return &Dashboard{source: source, width: 80, height: 24, started: time.Now()}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.EnterAltScreen)
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return d, tea.Quit
		}
	case tea.WindowSizeMsg:
		d.width, d.height = msg.Width, msg.Height
	case tickMsg:
		d.snap = d.source.Snapshot()
		return d, tickCmd()
	}
	return d, nil
}

func (d *Dashboard) View() string {
	if d.width == 0 {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(d.renderHeader())
	b.WriteString("\n")
	b.WriteString(d.renderWorkers())
	b.WriteString("\n")
	b.WriteString(d.renderFooter())
	return b.String()
}

func (d *Dashboard) renderHeader() string {
	title := TitleStyle.Render("⚡ fluxfuzz")
	uptime := InfoStyle.Render(formatDuration(time.Since(d.started)))
	totals := fmt.Sprintf(
		"%s %s  %s %s  %s %s  %s %s",
		LabelStyle.Render("execs"), ValueStyle.Render(fmt.Sprint(d.snap.TotalExecutions)),
		LabelStyle.Render("edges"), ValueStyle.Render(fmt.Sprint(d.snap.UniqueEdges)),
		LabelStyle.Render("crashes"), ValueStyle.Render(fmt.Sprint(d.snap.TotalCrashes)),
		LabelStyle.Render("hangs"), ValueStyle.Render(fmt.Sprint(d.snap.TotalHangs)),
	)
	header := title + "  " + uptime + "  " + totals
	return BoxStyle.Width(d.width - 2).Render(header)
}

func (d *Dashboard) renderWorkers() string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("Workers"))
	b.WriteString("\n")

	workers := append([]fuzztypes.WorkerStats(nil), d.snap.Workers...)
	sort.Slice(workers, func(i, j int) bool { return workers[i].WorkerID < workers[j].WorkerID })

	for _, w := range workers {
		state := RunningStyle.Render("●")
		if w.Inactive {
			state = StoppedStyle.Render("■")
		}
		line := fmt.Sprintf("%s %-16s execs=%-10d %s corpus=%-8d %.1f execs/s",
			state, w.WorkerID, w.Executions, crashCountLabel(w), w.CorpusSize, w.ExecsPerSecond)
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(workers) == 0 {
		b.WriteString(HelpStyle.Render("waiting for workers to report in..."))
		b.WriteString("\n")
	}
	return PanelStyle.Width(d.width - 4).Render(b.String())
}

// crashCountLabel renders a worker's crash counter, colored by how
// concerning its findings are: crashes outrank hangs outrank a clean
// run, mirroring the crash detector's own exploitability severity
// ordering (HIGH/MEDIUM/LOW) even though per-worker stats don't carry
// a full exploitability breakdown.
func crashCountLabel(w fuzztypes.WorkerStats) string {
	text := fmt.Sprintf("crashes=%-6d", w.Crashes)
	switch {
	case w.Crashes > 0:
		return ExploitabilityHighStyle.Render(text)
	case w.Hangs > 0:
		return ExploitabilityMediumStyle.Render(text)
	default:
		return ExploitabilityLowStyle.Render(text)
	}
}

func (d *Dashboard) renderFooter() string {
	return FooterStyle.Render(RenderHelp("q", "quit"))
}

func formatDuration(dur time.Duration) string {
	dur = dur.Round(time.Second)
	h := dur / time.Hour
	dur -= h * time.Hour
	m := dur / time.Minute
	dur -= m * time.Minute
	s := dur / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Run starts the TUI, polling source until the user quits.
func Run(source StatsSource) error {
	p := tea.NewProgram(NewDashboard(source), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

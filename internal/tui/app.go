// Package tui renders the live watch view over a running engine: state
// badge, position inside the sequence, statistics, and the recent event log.
// The view only reads advisory snapshots; control keys flip the same signals
// the hotkeys do.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fenrik/clickseq/internal/models"
	"github.com/fenrik/clickseq/internal/runner"
	"github.com/fenrik/clickseq/internal/tui/styles"
)

// Engine is the control surface the watch view reads and drives. Satisfied
// by runner.Engine.
type Engine interface {
	Stats() runner.Stats
	Done() <-chan struct{}
	TogglePause() error
	Skip() error
	Stop() error
	Restart() error
}

// EventSource supplies the recent events shown in the log panel.
type EventSource interface {
	Snapshot() []models.Event
}

// Options configure the watch program.
type Options struct {
	Engine Engine
	Events EventSource
	Theme  string
}

// Watch runs the watch view until the user detaches or the run finishes.
// The run itself is not stopped by detaching.
func Watch(opts Options) error {
	program := tea.NewProgram(newModel(opts), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

const (
	minWidth     = 56
	minHeight    = 14
	refreshEvery = 200 * time.Millisecond
	maxEventRows = 8
)

type model struct {
	styles styles.Styles
	engine Engine
	events EventSource

	width  int
	height int

	stats  runner.Stats
	recent []models.Event
	done   bool
}

func newModel(opts Options) model {
	m := model{
		styles: styles.BuildStyles(styles.ByName(opts.Theme)),
		engine: opts.Engine,
		events: opts.Events,
	}
	m.refresh()
	return m
}

func (m *model) refresh() {
	if m.engine != nil {
		m.stats = m.engine.Stats()
	}
	if m.events != nil {
		m.recent = m.events.Snapshot()
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type doneMsg struct{}

func waitDone(engine Engine) tea.Cmd {
	if engine == nil {
		return nil
	}
	return func() tea.Msg {
		<-engine.Done()
		return doneMsg{}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitDone(m.engine))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.done {
			return m, tea.Quit
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "p":
			_ = m.engine.TogglePause()
		case "n":
			_ = m.engine.Skip()
		case "z":
			_ = m.engine.Restart()
		case "x":
			_ = m.engine.Stop()
		}
		m.refresh()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.refresh()
		return m, tickCmd()
	case doneMsg:
		m.done = true
		m.refresh()
	}
	return m, nil
}

func (m model) View() string {
	if m.width > 0 && m.height > 0 && (m.width < minWidth || m.height < minHeight) {
		return joinLines(m.smallViewLines()) + "\n"
	}

	lines := []string{
		m.headerLine(),
		m.styles.Muted.Render(m.positionLine()),
		"",
		m.styles.Text.Render(m.statsLine()),
		"",
	}

	lines = append(lines, m.eventLines()...)
	lines = append(lines, "", m.styles.Muted.Render(m.helpLine()))

	return joinLines(lines) + "\n"
}

func (m model) smallViewLines() []string {
	return []string{
		m.styles.Warning.Render(fmt.Sprintf("Terminal too small (%dx%d).", m.width, m.height)),
		m.styles.Muted.Render(fmt.Sprintf("Resize to at least %dx%d.", minWidth, minHeight)),
		m.styles.Muted.Render("Press q to detach."),
	}
}

func (m model) headerLine() string {
	name := m.stats.SequenceName
	if name == "" {
		name = "(no sequence)"
	}
	return m.styles.Title.Render("clickseq - "+name) + "  " + RenderRunBadge(m.styles, m.stats)
}

func (m model) positionLine() string {
	return PositionLine(m.stats.Position)
}

func (m model) statsLine() string {
	return StatsLine(m.stats.Run)
}

func (m model) eventLines() []string {
	lines := []string{m.styles.Accent.Render("recent events")}
	if len(m.recent) == 0 {
		return append(lines, m.styles.Muted.Render("  (none yet)"))
	}

	start := 0
	if len(m.recent) > maxEventRows {
		start = len(m.recent) - maxEventRows
	}
	for _, event := range m.recent[start:] {
		lines = append(lines, "  "+m.eventStyle(event.Type).Render(EventLine(event, m.width)))
	}
	return lines
}

func (m model) eventStyle(eventType models.EventType) lipgloss.Style {
	switch eventType {
	case models.EventTypeFailSafeTriggered, models.EventTypeRunFailed, models.EventTypeError:
		return m.styles.Error
	case models.EventTypeTriggerTimeout, models.EventTypeFallbackTaken, models.EventTypeClickBudgetSpent:
		return m.styles.Warning
	case models.EventTypeRunStarted, models.EventTypeRunCompleted:
		return m.styles.Info
	default:
		return m.styles.Text
	}
}

func (m model) helpLine() string {
	if m.done {
		return "Run finished. Press any key to exit."
	}
	return "p pause · n skip · z restart · x stop · q detach"
}

func joinLines(lines []string) string {
	out := ""
	for i, line := range lines {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}

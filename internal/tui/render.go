package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fenrik/clickseq/internal/models"
	"github.com/fenrik/clickseq/internal/runner"
	"github.com/fenrik/clickseq/internal/tui/styles"
)

// RenderRunBadge renders the engine state as a colored badge.
func RenderRunBadge(styleSet styles.Styles, stats runner.Stats) string {
	label, style := badgeDescriptor(styleSet, stats)
	return style.Render("[" + label + "]")
}

func badgeDescriptor(styleSet styles.Styles, stats runner.Stats) (string, lipgloss.Style) {
	switch {
	case stats.Running && stats.Paused:
		return "PAUSED", styleSet.BadgePaused
	case stats.Running:
		return "RUNNING", styleSet.BadgeRunning
	case stats.Status == models.RunStatusCompleted:
		return "COMPLETED", styleSet.BadgeDone
	case stats.Status == models.RunStatusFailed:
		return "FAILED", styleSet.BadgeFailed
	case stats.Status == models.RunStatusStopped:
		return "STOPPED", styleSet.BadgeStopped
	default:
		return "IDLE", styleSet.BadgeStopped
	}
}

// PositionLine renders where the worker is inside the sequence.
func PositionLine(pos runner.Position) string {
	if pos.Cycle == 0 {
		return "waiting for the first cycle"
	}

	parts := make([]string, 0, 3)
	if pos.Cycles > 0 {
		parts = append(parts, fmt.Sprintf("cycle %d/%d", pos.Cycle, pos.Cycles))
	} else {
		parts = append(parts, fmt.Sprintf("cycle %d", pos.Cycle))
	}

	if pos.Phase != "" {
		phase := pos.Phase
		if pos.Repetitions > 1 {
			phase += fmt.Sprintf(" (%d/%d)", pos.Repetition, pos.Repetitions)
		}
		parts = append(parts, phase)
	}
	if pos.Steps > 0 {
		parts = append(parts, fmt.Sprintf("step %d/%d", pos.Step, pos.Steps))
	}

	return strings.Join(parts, " · ")
}

// StatsLine renders the run counters on one line.
func StatsLine(stats models.RunStats) string {
	return fmt.Sprintf("elapsed %s   cycles %d   clicks %d   items %d   keys %d   timeouts %d   restarts %d",
		shortElapsed(stats.Elapsed),
		stats.CyclesCompleted,
		stats.Clicks,
		stats.ItemsClicked,
		stats.KeysPressed,
		stats.TriggerTimeouts,
		stats.Restarts,
	)
}

// EventLine renders one event for the log panel, truncated to the viewport.
func EventLine(event models.Event, width int) string {
	line := fmt.Sprintf("%s %s", event.Timestamp.Local().Format("15:04:05"), event.Type)
	if len(event.Payload) > 0 {
		line += " " + string(event.Payload)
	}

	if width > 4 && len(line) > width-4 {
		line = line[:width-5] + "…"
	}
	return line
}

func shortElapsed(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	return d.Truncate(time.Second).String()
}

// Package cli provides status formatting helpers.
package cli

import (
	"fmt"
	"strings"

	"github.com/fenrik/clickseq/internal/models"
)

func formatRunStatus(status models.RunStatus) string {
	label, color := statusLabelForRun(status)
	return colorize(formatStatusLabel(label, string(status)), color)
}

func formatEventType(eventType models.EventType) string {
	return colorize(string(eventType), eventTypeColor(eventType))
}

func statusLabelForRun(status models.RunStatus) (string, string) {
	switch status {
	case models.RunStatusCompleted:
		return "OK", colorGreen
	case models.RunStatusRunning:
		return "BUSY", colorCyan
	case models.RunStatusStopped:
		return "WARN", colorYellow
	case models.RunStatusFailed:
		return "ERR", colorRed
	default:
		return "WARN", colorMagenta
	}
}

func eventTypeColor(eventType models.EventType) string {
	switch eventType {
	case models.EventTypeFailSafeTriggered, models.EventTypeRunFailed, models.EventTypeError:
		return colorRed
	case models.EventTypeTriggerTimeout, models.EventTypeFallbackTaken, models.EventTypeClickBudgetSpent:
		return colorYellow
	case models.EventTypeRunStarted, models.EventTypeRunCompleted:
		return colorCyan
	default:
		return ""
	}
}

func formatStatusLabel(label, status string) string {
	normalized := strings.TrimSpace(status)
	if normalized != "" {
		normalized = strings.ReplaceAll(normalized, "_", " ")
	}
	if normalized == "" {
		return label
	}
	return fmt.Sprintf("%s %s", label, normalized)
}

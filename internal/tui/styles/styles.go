package styles

import "github.com/charmbracelet/lipgloss"

// Styles contains the lipgloss styles derived from theme tokens.
type Styles struct {
	Theme  Theme
	Title  lipgloss.Style
	Text   lipgloss.Style
	Muted  lipgloss.Style
	Accent lipgloss.Style
	Border lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	// Run-state badges.
	BadgeRunning lipgloss.Style
	BadgePaused  lipgloss.Style
	BadgeDone    lipgloss.Style
	BadgeStopped lipgloss.Style
	BadgeFailed  lipgloss.Style
}

// DefaultStyles builds styles from the default theme.
func DefaultStyles() Styles {
	return BuildStyles(DefaultTheme)
}

// BuildStyles converts theme tokens into lipgloss styles.
func BuildStyles(theme Theme) Styles {
	tokens := theme.Tokens

	return Styles{
		Theme:  theme,
		Title:  lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Text)).Bold(true),
		Text:   lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Text)),
		Muted:  lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.TextMuted)),
		Accent: lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Accent)),
		Border: lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Border)),

		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Success)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Warning)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Error)),
		Info:    lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Info)),

		BadgeRunning: lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Success)).Bold(true),
		BadgePaused:  lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Warning)).Bold(true),
		BadgeDone:    lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Info)).Bold(true),
		BadgeStopped: lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.TextMuted)).Bold(true),
		BadgeFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color(tokens.Error)).Bold(true),
	}
}

// Package styles defines the watch view's themes and the lipgloss styles
// derived from them.
package styles

// ThemeTokens are the semantic color roles the watch view draws with.
type ThemeTokens struct {
	Text      string
	TextMuted string
	Border    string
	Accent    string
	Success   string
	Warning   string
	Error     string
	Info      string
}

// Theme bundles a palette with a name.
type Theme struct {
	Name   string
	Tokens ThemeTokens
}

// DefaultTheme is the baseline palette.
var DefaultTheme = Theme{
	Name: "default",
	Tokens: ThemeTokens{
		Text:      "#E6EDF3",
		TextMuted: "#8B9AAE",
		Border:    "#223043",
		Accent:    "#5B8DEF",
		Success:   "#3FB950",
		Warning:   "#D29922",
		Error:     "#F85149",
		Info:      "#58A6FF",
	},
}

// HighContrastTheme favors visibility on low-contrast terminals.
var HighContrastTheme = Theme{
	Name: "high-contrast",
	Tokens: ThemeTokens{
		Text:      "#FFFFFF",
		TextMuted: "#C0C0C0",
		Border:    "#FFFFFF",
		Accent:    "#00A2FF",
		Success:   "#00FF5A",
		Warning:   "#FFB000",
		Error:     "#FF4040",
		Info:      "#66CCFF",
	},
}

// Themes lists the available palettes by name.
var Themes = map[string]Theme{
	"default":       DefaultTheme,
	"high-contrast": HighContrastTheme,
}

// ByName returns the named theme, falling back to the default.
func ByName(name string) Theme {
	if theme, ok := Themes[name]; ok {
		return theme
	}
	return DefaultTheme
}

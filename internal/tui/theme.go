package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the color tokens of the viewer, as ANSI-256 codes.
type Theme struct {
	Name       string
	Foreground string
	Muted      string
	Accent     string
	Header     string
	ActivePane string
	Pane       string
	EmptyPane  string
	Success    string
	Warning    string
	Error      string
}

// DefaultTheme is the dark palette.
var DefaultTheme = Theme{
	Name:       "default",
	Foreground: "252",
	Muted:      "245",
	Accent:     "75",
	Header:     "111",
	ActivePane: "75",
	Pane:       "240",
	EmptyPane:  "238",
	Success:    "41",
	Warning:    "220",
	Error:      "203",
}

// HighContrastTheme favors legibility on low-quality terminals.
var HighContrastTheme = Theme{
	Name:       "high-contrast",
	Foreground: "231",
	Muted:      "250",
	Accent:     "51",
	Header:     "117",
	ActivePane: "231",
	Pane:       "250",
	EmptyPane:  "244",
	Success:    "46",
	Warning:    "226",
	Error:      "196",
}

// Themes lists the palettes by name.
var Themes = map[string]Theme{
	DefaultTheme.Name:      DefaultTheme,
	HighContrastTheme.Name: HighContrastTheme,
}

// ResolveTheme returns the named theme, falling back to the default.
func ResolveTheme(name string) Theme {
	if t, ok := Themes[name]; ok {
		return t
	}
	return DefaultTheme
}

func (t Theme) style(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

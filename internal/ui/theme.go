package ui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha palette.
var (
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorRed    = lipgloss.Color("#f38ba8")
	ColorTeal   = lipgloss.Color("#94e2d5")
	ColorMauve  = lipgloss.Color("#cba6f7")
	ColorMuted  = lipgloss.Color("#5a6278")
	ColorDim    = lipgloss.Color("#3a4055")
	ColorBright = lipgloss.Color("#cdd6f4")
)

var (
	styleOK     = lipgloss.NewStyle().Foreground(ColorGreen)
	styleFailed = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	styleMuted  = lipgloss.NewStyle().Foreground(ColorMuted)
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorMauve)
	styleBorder = lipgloss.NewStyle().Foreground(ColorDim)
	styleCell   = lipgloss.NewStyle().Foreground(ColorBright).Padding(0, 1)
	styleRate   = lipgloss.NewStyle().Foreground(ColorTeal)
)

// paint renders s with st when color is on.
func paint(color bool, st lipgloss.Style, s string) string {
	if !color {
		return s
	}
	return st.Render(s)
}

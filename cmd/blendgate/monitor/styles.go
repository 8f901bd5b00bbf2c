package monitor

import "github.com/charmbracelet/lipgloss"

// Color palette — calm, readable on dark terminals.
var (
	colorAccent  = lipgloss.Color("#7B68EE") // medium slate blue
	colorSuccess = lipgloss.Color("#50C878") // emerald
	colorWarning = lipgloss.Color("#FFB347") // pastel orange
	colorError   = lipgloss.Color("#FF6961") // pastel red
	colorMuted   = lipgloss.Color("#808080") // gray
	colorBorder  = lipgloss.Color("#3A3A5C") // subtle border
	colorTitle   = lipgloss.Color("#C4B5FD") // light purple
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)

	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			MarginBottom(1)

	stylePanelTitle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)

	styleOK    = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleWarn  = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleErr   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleDim   = lipgloss.NewStyle().Foreground(colorMuted)
	styleLabel = lipgloss.NewStyle().Foreground(colorMuted).Width(12)
	styleValue = lipgloss.NewStyle().Bold(true)

	styleStatusBar = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1)
)

func statusMark(status string, failed int) string {
	switch status {
	case "completed":
		if failed > 0 {
			return styleErr.Render("✗")
		}
		return styleOK.Render("✓")
	case "running", "pending":
		return styleWarn.Render("…")
	default:
		return styleDim.Render("•")
	}
}

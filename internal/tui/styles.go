package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hangar-launcher/hangar/internal/relay"
)

var (
	// Colors match across statuses so a row reads the same way whether it
	// tracks a game or a runner tool.
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	accentColor  = lipgloss.Color("#A78BFA") // Purple

	titleStyle   = lipgloss.NewStyle().Bold(true)
	keyStyle     = lipgloss.NewStyle()
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	spinnerStyle = lipgloss.NewStyle().Foreground(accentColor)

	activeStatusStyle  = lipgloss.NewStyle().Foreground(accentColor)
	doneStatusStyle    = lipgloss.NewStyle().Foreground(successColor)
	abortedStatusStyle = lipgloss.NewStyle().Foreground(warningColor)
	failedStatusStyle  = lipgloss.NewStyle().Foreground(errorColor)
	idleStatusStyle    = lipgloss.NewStyle().Foreground(mutedColor)

	successMark = lipgloss.NewStyle().Foreground(successColor).Render("✓")
	abortMark   = lipgloss.NewStyle().Foreground(warningColor).Render("⊘")
	failMark    = lipgloss.NewStyle().Foreground(errorColor).Render("✗")
)

// statusStyle picks the style for a row's status cell.
func statusStyle(r *row) lipgloss.Style {
	if r.terminal {
		switch r.outcome.Kind {
		case relay.OutcomeSuccess:
			return doneStatusStyle
		case relay.OutcomeAborted:
			return abortedStatusStyle
		default:
			return failedStatusStyle
		}
	}
	if r.status.AtRest() {
		return idleStatusStyle
	}
	return activeStatusStyle
}

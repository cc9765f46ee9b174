// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Text hierarchy
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#CCCCCC"}
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BBBBBB"} // Commit ids, authors
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"} // Hints, dates, help text

	// Borders
	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}
	BorderFocusColor   = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}

	// Status
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}

	// Diff stats
	DiffAddedColor   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	DiffRemovedColor = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}

	// Selected commit row
	SelectionBgColor = lipgloss.AdaptiveColor{Light: "#DDE6F0", Dark: "#2D3436"}

	CommitIDStyle = lipgloss.NewStyle().Foreground(TextSecondaryColor)
	AuthorStyle   = lipgloss.NewStyle().Foreground(TextSecondaryColor)
	MutedStyle    = lipgloss.NewStyle().Foreground(TextMutedColor)
	SelectedStyle = lipgloss.NewStyle().Background(SelectionBgColor).Bold(true)
	AddedStyle    = lipgloss.NewStyle().Foreground(DiffAddedColor)
	RemovedStyle  = lipgloss.NewStyle().Foreground(DiffRemovedColor)
	FileStyle     = lipgloss.NewStyle().Foreground(TextPrimaryColor).Bold(true)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor).
			Padding(0, 1)

	// Notifications in the status bar
	InfoStyle  = lipgloss.NewStyle().Foreground(BorderFocusColor)
	WarnStyle  = lipgloss.NewStyle().Foreground(StatusWarningColor).Bold(true)
	ErrorStyle = lipgloss.NewStyle().Foreground(StatusErrorColor).Bold(true)
)

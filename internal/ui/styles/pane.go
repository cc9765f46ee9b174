package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

// Border characters (rounded)
const (
	borderTopLeft     = "╭"
	borderTopRight    = "╮"
	borderBottomLeft  = "╰"
	borderBottomRight = "╯"
	borderHorizontal  = "─"
	borderVertical    = "│"
)

// Pane describes a bordered panel with a title on the left of the top
// border and an optional status on the right: ╭─ History ───── 150 ─╮
type Pane struct {
	Title   string
	Status  string
	Width   int
	Height  int
	Focused bool
}

// Render draws content inside the pane. Content is clipped to the inner
// area and padded so the right border lines up.
func (p Pane) Render(content string) string {
	var borderColor lipgloss.TerminalColor = BorderDefaultColor
	if p.Focused {
		borderColor = BorderFocusColor
	}
	borderStyle := lipgloss.NewStyle().Foreground(borderColor)

	innerWidth := max(p.Width-2, 1)
	innerHeight := max(p.Height-2, 1)

	lines := strings.Split(content, "\n")
	var sb strings.Builder
	sb.WriteString(p.topBorder(innerWidth, borderStyle))
	for i := range innerHeight {
		var line string
		if i < len(lines) {
			line = truncate.String(lines[i], uint(innerWidth))
		}
		if w := lipgloss.Width(line); w < innerWidth {
			line += strings.Repeat(" ", innerWidth-w)
		}
		sb.WriteString("\n")
		sb.WriteString(borderStyle.Render(borderVertical))
		sb.WriteString(line)
		sb.WriteString(borderStyle.Render(borderVertical))
	}
	sb.WriteString("\n")
	sb.WriteString(borderStyle.Render(borderBottomLeft + strings.Repeat(borderHorizontal, innerWidth) + borderBottomRight))
	return sb.String()
}

// topBorder builds ╭─ Title ───── Status ─╮. The status is dropped before
// the title is truncated.
func (p Pane) topBorder(innerWidth int, borderStyle lipgloss.Style) string {
	plain := borderStyle.Render(borderTopLeft + strings.Repeat(borderHorizontal, innerWidth) + borderTopRight)
	// "─ " + title + " " needs at least 4 cells.
	if p.Title == "" || innerWidth < 4 {
		return plain
	}

	titleStyle := lipgloss.NewStyle().Foreground(TextPrimaryColor).Bold(p.Focused)
	title := truncate.StringWithTail(p.Title, uint(innerWidth-4), "...")
	used := 3 + lipgloss.Width(title)

	var status string
	if p.Status != "" && used+lipgloss.Width(p.Status)+4 <= innerWidth {
		status = p.Status
		used += lipgloss.Width(status) + 3
	}

	var sb strings.Builder
	sb.WriteString(borderStyle.Render(borderTopLeft + borderHorizontal + " "))
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString(borderStyle.Render(" " + strings.Repeat(borderHorizontal, innerWidth-used)))
	if status != "" {
		sb.WriteString(borderStyle.Render(" "))
		sb.WriteString(MutedStyle.Render(status))
		sb.WriteString(borderStyle.Render(" " + borderHorizontal))
	}
	sb.WriteString(borderStyle.Render(borderTopRight))
	return sb.String()
}

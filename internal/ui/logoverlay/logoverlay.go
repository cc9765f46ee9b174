// Package logoverlay shows recent log entries in a box over the main view.
package logoverlay

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zjrosen/lanes/internal/log"
	"github.com/zjrosen/lanes/internal/pubsub"
	"github.com/zjrosen/lanes/internal/ui/styles"
)

const (
	maxEntries        = 500
	viewportMaxHeight = 25
	viewportMinHeight = 5
	boxMaxWidth       = 160
	boxMinWidth       = 40
)

// Model holds the entries received from the log broker and the overlay state.
type Model struct {
	visible  bool
	minLevel log.Level
	width    int
	height   int
	entries  []string
	viewport viewport.Model
	listener *pubsub.ContinuousListener[string]
}

// New creates a hidden overlay. source is usually log.Broker(); when nil
// the overlay never receives entries.
func New(ctx context.Context, source pubsub.Subscriber[string]) Model {
	m := Model{minLevel: log.LevelDebug}
	if source != nil {
		m.listener = pubsub.NewContinuousListener(ctx, source)
	}
	return m
}

// Listen returns the command receiving the next log entry, or nil when the
// overlay has no source.
func (m Model) Listen() tea.Cmd {
	if m.listener == nil {
		return nil
	}
	return m.listener.Listen()
}

// Update handles log events always and keys only while visible.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pubsub.Event[string]:
		m.entries = append(m.entries, strings.TrimSuffix(msg.Payload, "\n"))
		if len(m.entries) > maxEntries {
			m.entries = m.entries[len(m.entries)-maxEntries:]
		}
		if m.visible {
			m.refreshViewport()
		}
		return m, m.Listen()

	case tea.KeyMsg:
		if !m.visible {
			return m, nil
		}
		switch msg.String() {
		case "c":
			m.entries = nil
		case "d":
			m.minLevel = log.LevelDebug
		case "i":
			m.minLevel = log.LevelInfo
		case "w":
			m.minLevel = log.LevelWarn
		case "e":
			m.minLevel = log.LevelError
		case "j", "down":
			m.viewport.ScrollDown(1)
			return m, nil
		case "k", "up":
			m.viewport.ScrollUp(1)
			return m, nil
		case "g":
			m.viewport.GotoTop()
			return m, nil
		case "G":
			m.viewport.GotoBottom()
			return m, nil
		case "esc":
			m.visible = false
			return m, nil
		default:
			return m, nil
		}
		m.refreshViewport()
	}
	return m, nil
}

// View renders the overlay box, or "" when hidden.
func (m Model) View() string {
	if !m.visible {
		return ""
	}
	width := m.boxWidth()
	divider := styles.MutedStyle.Render(strings.Repeat("─", width))

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).PaddingLeft(1).Render("Logs"))
	b.WriteString("\n")
	b.WriteString(divider)
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(divider)
	b.WriteString("\n")
	b.WriteString(m.filterHint())

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.BorderFocusColor).
		Width(width).
		Render(b.String())
}

// Overlay renders the box centered in place of bg.
func (m Model) Overlay(bg string) string {
	if !m.visible {
		return bg
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.View())
}

// Visible reports whether the overlay is shown.
func (m Model) Visible() bool {
	return m.visible
}

// Entries returns the entries at or above the current level.
func (m Model) Entries() []string {
	var out []string
	for _, e := range m.entries {
		if entryLevel(e) >= m.minLevel {
			out = append(out, e)
		}
	}
	return out
}

// Toggle shows or hides the overlay.
func (m *Model) Toggle() {
	m.visible = !m.visible
	if m.visible {
		m.refreshViewport()
	}
}

// SetSize records the screen size.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	if m.width == 0 || m.height == 0 {
		return
	}
	contentWidth := m.boxWidth() - 2
	// header, footer and borders take six lines
	height := max(min(viewportMaxHeight, m.height-6), viewportMinHeight)

	m.viewport = viewport.New(contentWidth, height)
	entries := m.Entries()
	if len(entries) == 0 {
		m.viewport.SetContent(styles.MutedStyle.Italic(true).Render("No logs to display"))
		return
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		if ansi.StringWidth(e) > contentWidth {
			e = ansi.Truncate(e, contentWidth, "...")
		}
		lines[i] = colorize(e)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) boxWidth() int {
	return max(min(m.width-4, boxMaxWidth), boxMinWidth)
}

func (m Model) filterHint() string {
	hint := func(level log.Level, text string) string {
		if m.minLevel == level {
			return lipgloss.NewStyle().Bold(true).Render(text)
		}
		return styles.MutedStyle.Render(text)
	}
	return strings.Join([]string{
		styles.MutedStyle.Render("[c] Clear"),
		hint(log.LevelDebug, "[d] Debug"),
		hint(log.LevelInfo, "[i] Info"),
		hint(log.LevelWarn, "[w] Warn"),
		hint(log.LevelError, "[e] Error"),
	}, "  ")
}

// entryLevel reads the level tag written by the log package. Entries
// without one count as errors so they are never filtered out.
func entryLevel(entry string) log.Level {
	switch {
	case strings.Contains(entry, "[DEBUG]"):
		return log.LevelDebug
	case strings.Contains(entry, "[INFO]"):
		return log.LevelInfo
	case strings.Contains(entry, "[WARN]"):
		return log.LevelWarn
	default:
		return log.LevelError
	}
}

func colorize(entry string) string {
	switch entryLevel(entry) {
	case log.LevelDebug:
		return styles.MutedStyle.Render(entry)
	case log.LevelInfo:
		return styles.InfoStyle.UnsetBold().Render(entry)
	case log.LevelWarn:
		return lipgloss.NewStyle().Foreground(styles.StatusWarningColor).Render(entry)
	default:
		return lipgloss.NewStyle().Foreground(styles.StatusErrorColor).Render(entry)
	}
}

package diff

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TerminalOptions controls RenderTerminal.
type TerminalOptions struct {
	Filename    string
	Highlighter *Highlighter        // nil disables syntax colours
	Words       []map[int][]Segment // word segments per hunk, from WordDiffAll
	NoColor     bool
}

var (
	termHeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#54A0FF"))
	termAddedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#73F59F"))
	termRemovedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8787"))
	termMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#696969"))
	termWordAdded    = termAddedStyle.Reverse(true)
	termWordRemoved  = termRemovedStyle.Reverse(true)
)

// RenderTerminal renders hunks as terminal lines: old line number, new line
// number, the +/- prefix and the code. Changed lines carry their terminator
// marker like RenderHTML does.
func RenderTerminal(hunks []Hunk, opts TerminalOptions) []string {
	var lines []string
	for hi, h := range hunks {
		var words map[int][]Segment
		if hi < len(opts.Words) {
			words = opts.Words[hi]
		}
		for li, l := range h.Lines {
			if l.Kind == KindHeader {
				header := h.Header()
				if h.Section != "" {
					header += " " + h.Section
				}
				lines = append(lines, paint(opts, termHeaderStyle, header))
				continue
			}
			gutter := fmt.Sprintf("%4s %4s ", termNumber(l.OldLine), termNumber(l.NewLine))
			lines = append(lines, paint(opts, termMutedStyle, gutter)+termCode(l, words[li], opts))
		}
	}
	return lines
}

func termCode(l Line, segs []Segment, opts TerminalOptions) string {
	var prefix string
	var style lipgloss.Style
	switch l.Kind {
	case KindAdded:
		prefix, style = "+", termAddedStyle
	case KindRemoved:
		prefix, style = "-", termRemovedStyle
	case KindNoNewline:
		return paint(opts, termMutedStyle, l.Raw)
	default:
		prefix = " "
	}

	var code string
	switch {
	case len(segs) > 0 && !opts.NoColor:
		var sb strings.Builder
		for _, s := range segs {
			switch s.Kind {
			case SegmentAdded:
				sb.WriteString(termWordAdded.Render(s.Text))
			case SegmentRemoved:
				sb.WriteString(termWordRemoved.Render(s.Text))
			default:
				sb.WriteString(style.Render(s.Text))
			}
		}
		code = sb.String()
	case opts.Highlighter != nil && !opts.NoColor:
		code = opts.Highlighter.Terminal(opts.Filename, l.Raw)
	case l.Kind == KindContext:
		code = l.Raw
	default:
		code = paint(opts, style, l.Raw)
	}

	if l.ShowsEOL() && l.EOL != EOLNone {
		code += paint(opts, termMutedStyle, l.EOL.String())
	}
	return paint(opts, style, prefix) + code
}

func paint(opts TerminalOptions, style lipgloss.Style, s string) string {
	if opts.NoColor {
		return s
	}
	return style.Render(s)
}

func termNumber(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprint(n)
}

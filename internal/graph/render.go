package graph

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/zjrosen/lanes/internal/git"
)

// Glyphs used for graph cells.
const (
	glyphCommit = "●"
	glyphMerge  = "◉"
	glyphLine   = "│"
	glyphOpen   = "╮" // connector leaves the commit row towards a new lane
	glyphClose  = "╯" // connector arrives at the parent row from another lane
	glyphEmpty  = " "
)

var asciiGlyphs = map[string]string{
	glyphCommit: "*",
	glyphMerge:  "M",
	glyphLine:   "|",
	glyphOpen:   "\\",
	glyphClose:  "/",
}

// DefaultPalette holds the eight lane colours.
var DefaultPalette = []string{"#4E9BE6", "#E6A23C", "#67C23A", "#F56C6C", "#9B59B6", "#1ABC9C", "#E67E22", "#95A5A6"}

// RenderOptions controls text rendering of graph rows.
type RenderOptions struct {
	Width   int      // Total row width; 0 disables truncation
	Palette []string // Lane colours; DefaultPalette when empty
	NoColor bool
	ASCII   bool // Plain ASCII glyphs for terminals without box drawing
}

// Cells returns the graph cells of every row: one glyph and the palette
// index of its lane per lane column. A row is len(commits) long in the
// same order as commits.
func Cells(commits []git.Commit, a Assignment) [][]Cell {
	row := make(map[string]int, len(commits))
	for i, c := range commits {
		if _, ok := row[c.ID]; !ok {
			row[c.ID] = i
		}
	}

	grid := make([][]Cell, len(commits))
	for i := range grid {
		grid[i] = make([]Cell, a.LaneCount)
		for l := range grid[i] {
			grid[i][l] = Cell{Glyph: glyphEmpty, Color: a.Color(l)}
		}
	}
	set := func(r, lane int, glyph string, color int, prio int) {
		if r < 0 || r >= len(grid) || lane < 0 || lane >= a.LaneCount {
			return
		}
		if prio >= grid[r][lane].prio {
			grid[r][lane] = Cell{Glyph: glyph, Color: color, prio: prio}
		}
	}

	for _, s := range a.Segments {
		from := row[s.From]
		to, ok := row[s.To]
		if !ok || s.OffWindow {
			to = len(commits)
		}
		if to < from {
			// Parent drawn above its child; nothing sensible to connect.
			continue
		}
		color := a.SegmentColor(s)
		for r := from + 1; r < to; r++ {
			set(r, s.Track, glyphLine, color, 1)
		}
		if s.Track != s.FromLane {
			set(from, s.Track, glyphOpen, color, 2)
		}
		if to < len(commits) && s.Track != s.ToLane {
			set(to, s.Track, glyphClose, color, 2)
		}
	}

	for i, c := range commits {
		lane, ok := a.Lanes[c.ID]
		if !ok || row[c.ID] != i {
			continue
		}
		glyph := glyphCommit
		if c.IsMerge() {
			glyph = glyphMerge
		}
		set(i, lane, glyph, a.Color(lane), 3)
	}
	return grid
}

// Cell is one lane column of a graph row.
type Cell struct {
	Glyph string
	Color int
	prio  int
}

// Render returns one text line per commit: graph cells followed by the
// short id, subject and author.
func Render(commits []git.Commit, a Assignment, opts RenderOptions) []string {
	palette := opts.Palette
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	styles := make([]lipgloss.Style, len(palette))
	for i, c := range palette {
		styles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}

	grid := Cells(commits, a)
	graphWidth := a.LaneCount * 2
	lines := make([]string, len(commits))

	for i, c := range commits {
		var sb strings.Builder
		for _, cell := range grid[i] {
			glyph := cell.Glyph
			if opts.ASCII && glyph != glyphEmpty {
				glyph = asciiGlyphs[glyph]
			}
			if !opts.NoColor && glyph != glyphEmpty {
				glyph = styles[cell.Color%len(styles)].Render(glyph)
			}
			sb.WriteString(glyph)
			sb.WriteString(" ")
		}

		text := c.ShortID() + " " + c.Subject()
		if c.Author != "" {
			text += " (" + c.Author + ")"
		}
		if opts.Width > 0 {
			room := opts.Width - graphWidth - 1
			if room < 1 {
				room = 1
			}
			text = runewidth.FillRight(truncate.StringWithTail(text, uint(room), "…"), room)
		}
		sb.WriteString(" ")
		sb.WriteString(text)
		lines[i] = sb.String()
	}
	return lines
}

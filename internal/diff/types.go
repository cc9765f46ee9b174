// Package diff parses unified diff text into hunks of classified lines.
package diff

// LineKind classifies a line of a hunk.
type LineKind int

const (
	// KindHeader is the hunk header line (@@ -a,b +c,d @@).
	KindHeader LineKind = iota
	// KindAdded is a line present only in the new file.
	KindAdded
	// KindRemoved is a line present only in the old file.
	KindRemoved
	// KindContext is a line present in both files.
	KindContext
	// KindNoNewline is the "\ No newline at end of file" marker.
	KindNoNewline
)

// String returns a short name for the kind.
func (k LineKind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindAdded:
		return "added"
	case KindRemoved:
		return "removed"
	case KindContext:
		return "context"
	case KindNoNewline:
		return "eof"
	default:
		return "unknown"
	}
}

// EOL is the terminator a line had in the raw diff text.
type EOL int

const (
	EOLNone EOL = iota
	EOLLF
	EOLCRLF
)

// String returns the escaped marker shown next to changed lines.
func (e EOL) String() string {
	switch e {
	case EOLLF:
		return `\n`
	case EOLCRLF:
		return `\r\n`
	default:
		return ""
	}
}

// Line is one rendered line of a hunk.
type Line struct {
	Kind    LineKind
	OldLine int    // 0 when absent (added, marker, header)
	NewLine int    // 0 when absent (removed, marker, header)
	Text    string // HTML-escaped, spaces as &nbsp;
	Raw     string // Unescaped content without the +/-/space prefix
	EOL     EOL
	// EOLMarked is set on the content line a NoNewline marker refers to.
	EOLMarked bool
}

// ShowsEOL reports whether the terminator marker is displayed for the line.
// Only changed lines and the line before a missing-newline marker show it.
func (l Line) ShowsEOL() bool {
	return l.Kind == KindAdded || l.Kind == KindRemoved || l.EOLMarked
}

// Hunk is a contiguous block of a unified diff. Lines[0] is the header.
type Hunk struct {
	OldStart  int
	OldLength int
	NewStart  int
	NewLength int
	Section   string // Function context after the closing @@
	Lines     []Line
	// Placeholder marks the synthetic hunk for empty or binary diffs.
	Placeholder bool
}

// Header returns the canonical header text.
func (h Hunk) Header() string {
	if h.Placeholder {
		return PlaceholderHeader
	}
	return formatHeader(h.OldStart, h.OldLength, h.NewStart, h.NewLength)
}

// EndOfLine returns the terminator of the last content line, the marker
// distinguishing CRLF, LF and a missing trailing newline.
func (h Hunk) EndOfLine() EOL {
	for i := len(h.Lines) - 1; i >= 0; i-- {
		switch h.Lines[i].Kind {
		case KindAdded, KindRemoved, KindContext:
			return h.Lines[i].EOL
		}
	}
	return EOLNone
}

// Counts returns the number of old-side (removed+context) and new-side
// (added+context) lines in the hunk.
func (h Hunk) Counts() (oldCount, newCount int) {
	for _, l := range h.Lines {
		switch l.Kind {
		case KindRemoved:
			oldCount++
		case KindAdded:
			newCount++
		case KindContext:
			oldCount++
			newCount++
		}
	}
	return oldCount, newCount
}

package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zjrosen/lanes/internal/log"
)

// PlaceholderHeader is the header text of the synthetic hunk returned for
// blank or binary diffs.
const PlaceholderHeader = "@@ No changes detected or binary file @@"

var (
	hunkHeaderRegex  = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)
	binaryFilesRegex = regexp.MustCompile(`(?m)^Binary files (.+ and .+ )?differ\r?$`)
	htmlEscaper      = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", " ", "&nbsp;")
)

// rawLine is a line split from the input with its original terminator.
type rawLine struct {
	text string
	eol  EOL
}

// Parse turns unified diff text into hunks. It never fails: blank and
// binary input yield a single placeholder hunk, and malformed hunk headers
// are skipped together with their content. Parse is deterministic and
// keeps no state between calls.
func Parse(raw string) []Hunk {
	if strings.TrimSpace(raw) == "" || binaryFilesRegex.MatchString(raw) {
		return []Hunk{placeholderHunk()}
	}

	var (
		hunks     []Hunk
		cur       *Hunk
		oldCursor int
		newCursor int
	)

	flush := func() {
		if cur != nil {
			hunks = append(hunks, *cur)
			cur = nil
		}
	}

	for _, rl := range splitLines(raw) {
		line := rl.text

		if strings.HasPrefix(line, "@@") {
			flush()
			h, ok := parseHeader(line)
			if !ok {
				log.Debug(log.CatDiff, "skipping malformed hunk header", "line", line)
				continue
			}
			h.Lines = append(h.Lines, Line{
				Kind: KindHeader,
				Text: escape(line),
				Raw:  line,
				EOL:  rl.eol,
			})
			cur = &h
			oldCursor, newCursor = h.OldStart, h.NewStart
			continue
		}

		if cur == nil {
			// Preamble, file headers, or content of a skipped hunk.
			continue
		}

		if strings.HasPrefix(line, `\`) {
			markPreviousEOL(cur)
			cur.Lines = append(cur.Lines, Line{Kind: KindNoNewline, Text: escape(line), Raw: line})
			continue
		}

		if strings.HasPrefix(line, "diff ") {
			// Next file's preamble; skipped until its first hunk header.
			flush()
			continue
		}

		content := line
		kind := KindContext
		if line != "" {
			switch line[0] {
			case '+':
				kind = KindAdded
			case '-':
				kind = KindRemoved
			}
			content = line[1:]
		}

		l := Line{Kind: kind, Text: escape(content), Raw: content, EOL: rl.eol}
		switch kind {
		case KindAdded:
			l.NewLine = newCursor
			newCursor++
		case KindRemoved:
			l.OldLine = oldCursor
			oldCursor++
		default:
			l.OldLine, l.NewLine = oldCursor, newCursor
			oldCursor++
			newCursor++
		}
		cur.Lines = append(cur.Lines, l)
	}
	flush()

	if len(hunks) == 0 {
		return []Hunk{placeholderHunk()}
	}
	return hunks
}

// splitLines splits on \n, recording whether each line ended in LF, CRLF
// or nothing. The empty piece after a final terminator is dropped.
func splitLines(raw string) []rawLine {
	pieces := strings.Split(raw, "\n")
	lines := make([]rawLine, 0, len(pieces))
	for i, p := range pieces {
		last := i == len(pieces)-1
		if last && p == "" {
			break
		}
		rl := rawLine{text: p, eol: EOLLF}
		if last {
			rl.eol = EOLNone
		}
		if strings.HasSuffix(p, "\r") {
			rl.text = strings.TrimSuffix(p, "\r")
			if !last {
				rl.eol = EOLCRLF
			}
		}
		lines = append(lines, rl)
	}
	return lines
}

// parseHeader parses "@@ -a,b +c,d @@ section". Omitted lengths default to 1.
func parseHeader(line string) (Hunk, bool) {
	m := hunkHeaderRegex.FindStringSubmatch(line)
	if m == nil {
		return Hunk{}, false
	}
	num := func(s string, def int) (int, bool) {
		if s == "" {
			return def, true
		}
		n, err := strconv.Atoi(s)
		return n, err == nil
	}
	oldStart, ok1 := num(m[1], 0)
	oldLength, ok2 := num(m[2], 1)
	newStart, ok3 := num(m[3], 0)
	newLength, ok4 := num(m[4], 1)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Hunk{}, false
	}
	return Hunk{
		OldStart:  oldStart,
		OldLength: oldLength,
		NewStart:  newStart,
		NewLength: newLength,
		Section:   strings.TrimSpace(m[5]),
	}, true
}

// markPreviousEOL flags the content line a NoNewline marker refers to: the
// original file ended there without a terminator.
func markPreviousEOL(h *Hunk) {
	n := len(h.Lines)
	if n == 0 {
		return
	}
	l := &h.Lines[n-1]
	switch l.Kind {
	case KindAdded, KindRemoved, KindContext:
		l.EOL = EOLNone
		l.EOLMarked = true
	}
}

func placeholderHunk() Hunk {
	return Hunk{
		Placeholder: true,
		Lines: []Line{{
			Kind: KindHeader,
			Text: escape(PlaceholderHeader),
			Raw:  PlaceholderHeader,
		}},
	}
}

func formatHeader(oldStart, oldLength, newStart, newLength int) string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", oldStart, oldLength, newStart, newLength)
}

func escape(s string) string {
	return htmlEscaper.Replace(s)
}

// Stats counts added and removed lines across hunks.
func Stats(hunks []Hunk) (added, removed int) {
	for _, h := range hunks {
		for _, l := range h.Lines {
			switch l.Kind {
			case KindAdded:
				added++
			case KindRemoved:
				removed++
			}
		}
	}
	return added, removed
}

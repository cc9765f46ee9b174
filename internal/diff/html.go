package diff

import (
	"strconv"
	"strings"
)

// RenderHTML renders hunks as table rows: old line number, new line number
// and code. Changed lines carry their terminator marker (\r\n or \n), so
// CRLF changes and a missing trailing newline stay visible. When hl is not
// nil, code is syntax highlighted for filename.
func RenderHTML(hunks []Hunk, filename string, hl *Highlighter) string {
	var sb strings.Builder
	for _, h := range hunks {
		for _, l := range h.Lines {
			if l.Kind == KindHeader {
				writeRow(&sb, "header", "&nbsp;", "&nbsp;", "&nbsp;"+escape(h.Header()))
				continue
			}

			code := l.Text
			if hl != nil && l.Kind != KindNoNewline {
				code = hl.HTML(filename, l.Raw)
			}
			if l.ShowsEOL() && l.EOL != EOLNone {
				code += `<span class="marker">` + htmlMarker(l.EOL) + `</span>`
			}

			class := "&nbsp;"
			switch l.Kind {
			case KindAdded:
				class = "added"
			case KindRemoved:
				class = "removed"
			case KindNoNewline:
				class = "eof"
			}
			writeRow(&sb, class, lineNumber(l.OldLine), lineNumber(l.NewLine), code)
		}
	}
	return sb.String()
}

func htmlMarker(e EOL) string {
	return strings.ReplaceAll(e.String(), `\`, "&#92;")
}

func lineNumber(n int) string {
	if n == 0 {
		return "&nbsp;"
	}
	return strconv.Itoa(n)
}

func writeRow(sb *strings.Builder, class, oldNum, newNum, code string) {
	sb.WriteString(`<tr><td class="line-number `)
	sb.WriteString(class)
	sb.WriteString(`">`)
	sb.WriteString(oldNum)
	sb.WriteString(`</td><td class="line-number `)
	sb.WriteString(class)
	sb.WriteString(`">`)
	sb.WriteString(newNum)
	sb.WriteString(`</td><td class="code `)
	sb.WriteString(class)
	sb.WriteString(`">`)
	sb.WriteString(code)
	sb.WriteString("</td></tr>\n")
}

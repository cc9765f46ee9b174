package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type lineSummary struct {
	Kind    LineKind
	OldLine int
	NewLine int
	Raw     string
}

func summarize(lines []Line) []lineSummary {
	out := make([]lineSummary, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineSummary{l.Kind, l.OldLine, l.NewLine, l.Raw})
	}
	return out
}

func TestParse_Example(t *testing.T) {
	hunks := Parse("@@ -1,2 +1,3 @@\n context\n-old\n+new1\n+new2\n")
	require.Len(t, hunks, 1)

	h := hunks[0]
	require.Equal(t, 1, h.OldStart)
	require.Equal(t, 2, h.OldLength)
	require.Equal(t, 1, h.NewStart)
	require.Equal(t, 3, h.NewLength)
	require.False(t, h.Placeholder)

	require.Equal(t, []lineSummary{
		{KindHeader, 0, 0, "@@ -1,2 +1,3 @@"},
		{KindContext, 1, 1, "context"},
		{KindRemoved, 2, 0, "old"},
		{KindAdded, 0, 2, "new1"},
		{KindAdded, 0, 3, "new2"},
	}, summarize(h.Lines))
	require.Equal(t, EOLLF, h.EndOfLine())
}

func TestParse_PlaceholderForBlankAndBinary(t *testing.T) {
	for _, input := range []string{
		"",
		"   \n\t\n",
		"diff --git a/img.png b/img.png\nindex 1..2 100644\nBinary files a/img.png and b/img.png differ\n",
		"Binary files differ\n",
	} {
		hunks := Parse(input)
		require.Len(t, hunks, 1, "input %q", input)
		require.True(t, hunks[0].Placeholder)
		require.Equal(t, PlaceholderHeader, hunks[0].Header())
		require.Len(t, hunks[0].Lines, 1)
		require.Equal(t, KindHeader, hunks[0].Lines[0].Kind)
	}
}

func TestParse_SkipsPreamble(t *testing.T) {
	raw := "diff --git a/x.go b/x.go\n" +
		"index 83db48f..bf269f4 100644\n" +
		"--- a/x.go\n" +
		"+++ b/x.go\n" +
		"@@ -3,2 +3,2 @@ func main() {\n" +
		"-\tprintln(1)\n" +
		"+\tprintln(2)\n" +
		" }\n"

	hunks := Parse(raw)
	require.Len(t, hunks, 1)
	require.Equal(t, "func main() {", hunks[0].Section)
	require.Equal(t, "@@ -3,2 +3,2 @@", hunks[0].Header())
	require.Equal(t, []lineSummary{
		{KindHeader, 0, 0, "@@ -3,2 +3,2 @@ func main() {"},
		{KindRemoved, 3, 0, "\tprintln(1)"},
		{KindAdded, 0, 3, "\tprintln(2)"},
		{KindContext, 4, 4, "}"},
	}, summarize(hunks[0].Lines))
}

func TestParse_MultipleFiles(t *testing.T) {
	raw := "diff --git a/a.txt b/a.txt\n--- a/a.txt\n+++ b/a.txt\n@@ -1 +1 @@\n-a\n+A\n" +
		"diff --git a/b.txt b/b.txt\n--- a/b.txt\n+++ b/b.txt\n@@ -1,0 +2,1 @@\n+b\n"

	hunks := Parse(raw)
	require.Len(t, hunks, 2)
	require.Len(t, hunks[0].Lines, 3)
	require.Equal(t, []lineSummary{
		{KindHeader, 0, 0, "@@ -1,0 +2,1 @@"},
		{KindAdded, 0, 2, "b"},
	}, summarize(hunks[1].Lines))
}

func TestParse_LinesPastHeaderCountsStayInHunk(t *testing.T) {
	hunks := Parse("@@ -1,1 +1,1 @@\n-a\n+b\n c\n")

	require.Len(t, hunks, 1)
	require.Equal(t, []lineSummary{
		{KindHeader, 0, 0, "@@ -1,1 +1,1 @@"},
		{KindRemoved, 1, 0, "a"},
		{KindAdded, 0, 1, "b"},
		{KindContext, 2, 2, "c"},
	}, summarize(hunks[0].Lines))
}

func TestParse_DiffLineEndsHunk(t *testing.T) {
	raw := "@@ -1 +1 @@\n-a\n+b\n" +
		"diff --git a/c.txt b/c.txt\nindex 1..2 100644\n--- a/c.txt\n+++ b/c.txt\n" +
		"@@ -4 +4 @@\n-c\n+d\n"

	hunks := Parse(raw)
	require.Len(t, hunks, 2)
	require.Len(t, hunks[0].Lines, 3, "the next file's preamble is not content")
	require.Equal(t, []lineSummary{
		{KindHeader, 0, 0, "@@ -4 +4 @@"},
		{KindRemoved, 4, 0, "c"},
		{KindAdded, 0, 4, "d"},
	}, summarize(hunks[1].Lines))
}

func TestParse_OmittedLengthsDefaultToOne(t *testing.T) {
	hunks := Parse("@@ -7 +7 @@\n-a\n+b\n")
	require.Len(t, hunks, 1)
	require.Equal(t, 1, hunks[0].OldLength)
	require.Equal(t, 1, hunks[0].NewLength)
	require.Equal(t, "@@ -7,1 +7,1 @@", hunks[0].Header())
}

func TestParse_MalformedHeaderSkipped(t *testing.T) {
	raw := "@@ -x,1 +1,1 @@\n+ignored\n@@ -1 +1 @@\n-a\n+b\n"

	hunks := Parse(raw)
	require.Len(t, hunks, 1)
	require.Equal(t, []lineSummary{
		{KindHeader, 0, 0, "@@ -1 +1 @@"},
		{KindRemoved, 1, 0, "a"},
		{KindAdded, 0, 1, "b"},
	}, summarize(hunks[0].Lines))
}

func TestParse_OnlyMalformedHeadersYieldsPlaceholder(t *testing.T) {
	hunks := Parse("@@ garbage @@\n+x\n")
	require.Len(t, hunks, 1)
	require.True(t, hunks[0].Placeholder)
}

func TestParse_CRLFDetection(t *testing.T) {
	hunks := Parse("@@ -1,2 +1,2 @@\r\n-a\r\n+a\n b\r\n")
	require.Len(t, hunks, 1)

	lines := hunks[0].Lines
	require.Equal(t, "a", lines[1].Raw, "carriage return is stripped from content")
	require.Equal(t, EOLCRLF, lines[1].EOL)
	require.Equal(t, EOLLF, lines[2].EOL)
	require.Equal(t, EOLCRLF, lines[3].EOL)
	require.Equal(t, EOLCRLF, hunks[0].EndOfLine())
}

func TestParse_NoNewlineMarker(t *testing.T) {
	raw := "@@ -1 +1 @@\n-old\n\\ No newline at end of file\n+new\n\\ No newline at end of file"

	hunks := Parse(raw)
	require.Len(t, hunks, 1)
	lines := hunks[0].Lines
	require.Len(t, lines, 5)

	require.Equal(t, KindRemoved, lines[1].Kind)
	require.Equal(t, EOLNone, lines[1].EOL)
	require.True(t, lines[1].EOLMarked)

	require.Equal(t, KindNoNewline, lines[2].Kind)
	require.Zero(t, lines[2].OldLine)
	require.Zero(t, lines[2].NewLine)

	require.Equal(t, KindAdded, lines[3].Kind)
	require.Equal(t, 1, lines[3].NewLine, "marker consumes no cursor")
	require.True(t, lines[3].EOLMarked)
	require.Equal(t, EOLNone, hunks[0].EndOfLine())
}

func TestParse_MissingFinalTerminator(t *testing.T) {
	hunks := Parse("@@ -1 +1 @@\n-a\n+b")
	require.Len(t, hunks, 1)
	require.Equal(t, EOLNone, hunks[0].Lines[2].EOL)
	require.False(t, hunks[0].Lines[2].EOLMarked)
}

func TestParse_EscapesText(t *testing.T) {
	hunks := Parse("@@ -1 +1 @@\n-if a < b && c > d {\n+x\n")
	removed := hunks[0].Lines[1]
	require.Equal(t, "if&nbsp;a&nbsp;&lt;&nbsp;b&nbsp;&amp;&amp;&nbsp;c&nbsp;&gt;&nbsp;d&nbsp;{", removed.Text)
	require.Equal(t, "if a < b && c > d {", removed.Raw)
}

func TestParse_HunkLineCounts(t *testing.T) {
	raw := "@@ -10,3 +10,4 @@\n a\n-b\n+B\n+C\n c\n"
	hunks := Parse(raw)
	require.Len(t, hunks, 1)
	oldCount, newCount := hunks[0].Counts()
	require.Equal(t, 3, oldCount)
	require.Equal(t, 4, newCount)
}

func TestStats(t *testing.T) {
	added, removed := Stats(Parse("@@ -1,2 +1,3 @@\n context\n-old\n+new1\n+new2\n"))
	require.Equal(t, 2, added)
	require.Equal(t, 1, removed)
}

// genHunk generates a well-formed hunk body and its header.
func genHunk(t *rapid.T) (string, int, int) {
	kinds := rapid.SliceOfN(rapid.SampledFrom([]byte{' ', '+', '-'}), 1, 30).Draw(t, "kinds")
	var body strings.Builder
	oldLen, newLen := 0, 0
	for i, k := range kinds {
		text := rapid.StringMatching(`[a-z<>& ]{0,12}`).Draw(t, fmt.Sprintf("text%d", i))
		body.WriteByte(k)
		body.WriteString(text)
		if rapid.Bool().Draw(t, fmt.Sprintf("crlf%d", i)) {
			body.WriteString("\r\n")
		} else {
			body.WriteString("\n")
		}
		switch k {
		case '+':
			newLen++
		case '-':
			oldLen++
		default:
			oldLen++
			newLen++
		}
	}
	header := fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", 1, oldLen, 1, newLen)
	return header + body.String(), oldLen, newLen
}

func TestParse_LineCountsMatchHeaderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw, oldLen, newLen := genHunk(t)
		hunks := Parse(raw)
		if len(hunks) != 1 {
			t.Fatalf("expected 1 hunk, got %d", len(hunks))
		}
		oldCount, newCount := hunks[0].Counts()
		if oldCount != oldLen || newCount != newLen {
			t.Fatalf("counts (%d,%d) != header (%d,%d)", oldCount, newCount, oldLen, newLen)
		}
	})
}

func TestParse_IdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var raw string
		if rapid.Bool().Draw(t, "structured") {
			raw, _, _ = genHunk(t)
		} else {
			raw = rapid.String().Draw(t, "raw")
		}
		first := Parse(raw)
		second := Parse(raw)
		require.Equal(t, first, second)
	})
}

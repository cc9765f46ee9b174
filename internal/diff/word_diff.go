package diff

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Word diff bounds.
const (
	// WordDiffMaxLineLength skips word diff for lines exceeding this length.
	WordDiffMaxLineLength = 500
	// WordDiffMaxPairs limits word diff computation to the first N pairs per hunk.
	WordDiffMaxPairs = 100
	// WordDiffTimeout is the time allowed for word diff of one set of hunks.
	WordDiffTimeout = 50 * time.Millisecond
)

// SegmentKind tells whether a word segment is unchanged, added or removed.
type SegmentKind int

const (
	SegmentEqual SegmentKind = iota
	SegmentAdded
	SegmentRemoved
)

// Segment is a run of text with its word-level diff status.
type Segment struct {
	Kind SegmentKind
	Text string
}

// tokenize splits a line into words, whitespace runes and punctuation.
// Example: "foo.bar()" -> ["foo", ".", "bar", "(", ")"]
func tokenize(line string) []string {
	if line == "" {
		return nil
	}

	var tokens []string
	var current strings.Builder

	for _, r := range line {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
			continue
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// WordDiff computes word-level segments for a removed/added line pair.
// Tokens are mapped to single runes so the diff never splits a word.
func WordDiff(removed, added string) (oldSegs, newSegs []Segment) {
	if removed == "" && added == "" {
		return nil, nil
	}
	if removed == "" {
		return nil, []Segment{{Kind: SegmentAdded, Text: added}}
	}
	if added == "" {
		return []Segment{{Kind: SegmentRemoved, Text: removed}}, nil
	}

	dmp := diffmatchpatch.New()
	oldChars, newChars, table := tokensToChars(tokenize(removed), tokenize(added))
	diffs := dmp.DiffMain(oldChars, newChars, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	for _, d := range diffs {
		var text strings.Builder
		for _, r := range d.Text {
			text.WriteString(table[r])
		}
		if text.Len() == 0 {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldSegs = append(oldSegs, Segment{Kind: SegmentEqual, Text: text.String()})
			newSegs = append(newSegs, Segment{Kind: SegmentEqual, Text: text.String()})
		case diffmatchpatch.DiffDelete:
			oldSegs = append(oldSegs, Segment{Kind: SegmentRemoved, Text: text.String()})
		case diffmatchpatch.DiffInsert:
			newSegs = append(newSegs, Segment{Kind: SegmentAdded, Text: text.String()})
		}
	}
	return oldSegs, newSegs
}

// tokensToChars encodes each distinct token as one rune from the private
// use area and returns the decoding table.
func tokensToChars(a, b []string) (string, string, map[rune]string) {
	index := make(map[string]rune)
	table := make(map[rune]string)
	next := rune(0xE000)

	encode := func(tokens []string) string {
		var sb strings.Builder
		for _, tok := range tokens {
			r, ok := index[tok]
			if !ok {
				r = next
				next++
				index[tok] = r
				table[r] = tok
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}
	return encode(a), encode(b), table
}

// HunkWordDiff pairs each removed line directly followed by an added line and
// returns their segments keyed by line index within hunk.Lines. It respects
// WordDiffMaxPairs, WordDiffMaxLineLength and ctx.
func HunkWordDiff(ctx context.Context, hunk Hunk) map[int][]Segment {
	result := make(map[int][]Segment)
	pairs := 0

	for i := 0; i < len(hunk.Lines)-1 && pairs < WordDiffMaxPairs; i++ {
		if hunk.Lines[i].Kind != KindRemoved || hunk.Lines[i+1].Kind != KindAdded {
			continue
		}
		if ctx.Err() != nil {
			return result
		}
		removed, added := hunk.Lines[i].Raw, hunk.Lines[i+1].Raw
		pairs++
		if len(removed) > WordDiffMaxLineLength || len(added) > WordDiffMaxLineLength {
			i++
			continue
		}
		oldSegs, newSegs := WordDiff(removed, added)
		result[i] = oldSegs
		result[i+1] = newSegs
		i++
	}
	return result
}

// WordDiffAll computes word diffs for every hunk under WordDiffTimeout.
// The outer slice is indexed like hunks.
func WordDiffAll(hunks []Hunk) []map[int][]Segment {
	ctx, cancel := context.WithTimeout(context.Background(), WordDiffTimeout)
	defer cancel()

	out := make([]map[int][]Segment, len(hunks))
	for i, h := range hunks {
		if ctx.Err() != nil {
			break
		}
		out[i] = HunkWordDiff(ctx, h)
	}
	return out
}

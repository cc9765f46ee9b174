package diff

import (
	"regexp"
	"strings"
)

var (
	diffHeaderRegex = regexp.MustCompile(`^diff --git a/(.+) b/(.+)$`)
	renameFromRegex = regexp.MustCompile(`^rename from (.+)$`)
	renameToRegex   = regexp.MustCompile(`^rename to (.+)$`)
)

// FilePatch is the slice of a multi-file diff belonging to one file.
type FilePatch struct {
	OldPath string
	NewPath string
	Binary  bool
	Raw     string // Text from the diff --git line up to the next one
}

// Path returns the path to display: the new path unless the file was deleted.
func (f FilePatch) Path() string {
	if f.NewPath == "" || f.NewPath == "/dev/null" {
		return f.OldPath
	}
	return f.NewPath
}

// SplitFiles splits git diff output into per-file patches. Text before the
// first "diff --git" line is ignored.
func SplitFiles(raw string) []FilePatch {
	var (
		files []FilePatch
		cur   *FilePatch
		body  strings.Builder
	)

	flush := func() {
		if cur != nil {
			cur.Raw = body.String()
			files = append(files, *cur)
			body.Reset()
		}
	}

	for _, line := range strings.SplitAfter(raw, "\n") {
		if line == "" {
			continue
		}
		trimmed := strings.TrimRight(line, "\r\n")

		if m := diffHeaderRegex.FindStringSubmatch(trimmed); m != nil {
			flush()
			cur = &FilePatch{OldPath: m[1], NewPath: m[2]}
		}
		if cur == nil {
			continue
		}
		body.WriteString(line)

		switch {
		case binaryFilesRegex.MatchString(trimmed):
			cur.Binary = true
		case trimmed == "+++ /dev/null":
			cur.NewPath = "/dev/null"
		case trimmed == "--- /dev/null":
			cur.OldPath = "/dev/null"
		}
		if m := renameFromRegex.FindStringSubmatch(trimmed); m != nil {
			cur.OldPath = m[1]
		}
		if m := renameToRegex.FindStringSubmatch(trimmed); m != nil {
			cur.NewPath = m[1]
		}
	}
	flush()
	return files
}

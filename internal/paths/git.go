// Package paths provides path resolution utilities.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoGitDir is returned when no git directory is found at or above a path.
var ErrNoGitDir = errors.New("no git directory found")

// GitDirs are the locations of a repository's metadata.
type GitDirs struct {
	// WorkTree is the top level of the checkout, empty for bare repositories.
	WorkTree string
	// GitDir holds HEAD and the index of this worktree.
	GitDir string
	// CommonDir holds refs and objects. It equals GitDir except in linked
	// worktrees.
	CommonDir string
}

// ResolveGitDirs finds the repository containing path.
//
// Input normalization:
//   - "/path/to/project" or any directory below it -> .git of the project
//   - "/path/to/project/.git" -> that directory
//   - "/path/to/bare.git" (containing HEAD and objects) -> that directory
//   - "" -> the current directory
//
// A .git file ("gitdir: <path>") is followed, as created by linked
// worktrees and submodules, and a commondir file inside the git dir points
// at the shared metadata.
func ResolveGitDirs(path string) (GitDirs, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return GitDirs{}, fmt.Errorf("resolving %s: %w", path, err)
	}

	if isGitDir(abs) {
		dirs := GitDirs{GitDir: abs}
		if filepath.Base(abs) == ".git" {
			dirs.WorkTree = filepath.Dir(abs)
		}
		dirs.CommonDir = commonDir(abs)
		return dirs, nil
	}

	for dir := abs; ; dir = filepath.Dir(dir) {
		dotGit := filepath.Join(dir, ".git")
		info, err := os.Stat(dotGit)
		if err == nil {
			gitDir := dotGit
			if !info.IsDir() {
				gitDir, err = followGitFile(dotGit)
				if err != nil {
					return GitDirs{}, err
				}
			}
			return GitDirs{WorkTree: dir, GitDir: gitDir, CommonDir: commonDir(gitDir)}, nil
		}
		if filepath.Dir(dir) == dir {
			return GitDirs{}, fmt.Errorf("%w: %s", ErrNoGitDir, abs)
		}
	}
}

// isGitDir reports whether dir looks like a git directory.
func isGitDir(dir string) bool {
	for _, name := range []string{"HEAD", "objects", "refs"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// followGitFile reads a "gitdir: <path>" file. Relative targets are
// resolved against the file's directory.
func followGitFile(file string) (string, error) {
	content, err := os.ReadFile(file) //nolint:gosec // G304: .git file of the repository being opened
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file, err)
	}
	line := strings.TrimSpace(string(content))
	target, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return "", fmt.Errorf("%w: %s is not a gitdir file", ErrNoGitDir, file)
	}
	target = strings.TrimSpace(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(file), target)
	}
	return filepath.Clean(target), nil
}

// commonDir follows gitDir/commondir when present.
func commonDir(gitDir string) string {
	content, err := os.ReadFile(filepath.Join(gitDir, "commondir")) //nolint:gosec // G304: inside the git dir
	if err != nil {
		return gitDir
	}
	target := strings.TrimSpace(string(content))
	if target == "" {
		return gitDir
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(gitDir, target)
	}
	return filepath.Clean(target)
}

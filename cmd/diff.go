package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/lanes/internal/details"
	"github.com/zjrosen/lanes/internal/diff"
	"github.com/zjrosen/lanes/internal/ui/styles"
)

var (
	diffCached bool
	diffFile   string
	diffStat   bool
)

var diffCmd = &cobra.Command{
	Use:   "diff [commit]",
	Short: "Print a parsed diff",
	Long: `Print the diff of a commit, or of the working tree when no commit is
given, with line numbers and syntax highlighting.

Examples:
  lanes diff HEAD
  lanes diff --cached
  lanes diff --file internal/graph/layout.go
  lanes diff 3f2a9c1 --stat`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().BoolVar(&diffCached, "cached", false, "diff the index against HEAD")
	diffCmd.Flags().StringVar(&diffFile, "file", "", "limit the working tree diff to one file")
	diffCmd.Flags().BoolVar(&diffStat, "stat", false, "print only per-file line counts")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	services, repo, err := commandServices()
	if err != nil {
		return err
	}
	defer closeServices(services)

	var files []details.FileDiff
	if len(args) == 1 {
		d, err := services.Details.Load(cmd.Context(), repo, args[0])
		if err != nil {
			return err
		}
		files = d.Files
	} else {
		files, err = services.Details.FileDiff(cmd.Context(), repo, diffFile, diffCached)
		if err != nil {
			return err
		}
	}

	if diffStat {
		return writeDiffStat(cmd.OutOrStdout(), files)
	}
	return writeDiff(cmd.OutOrStdout(), files, services.Highlighter)
}

func fileTitle(f details.FileDiff) string {
	if f.OldPath != "" && f.OldPath != f.Path && f.OldPath != "/dev/null" {
		return f.OldPath + " → " + f.Path
	}
	return f.Path
}

func writeDiffStat(w io.Writer, files []details.FileDiff) error {
	var added, removed int
	for _, f := range files {
		added += f.Added
		removed += f.Removed
		if _, err := fmt.Fprintf(w, "%s | +%d -%d\n", fileTitle(f), f.Added, f.Removed); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d files changed, +%d -%d\n", len(files), added, removed)
	return err
}

func writeDiff(w io.Writer, files []details.FileDiff, hl *diff.Highlighter) error {
	for i, f := range files {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		title := fileTitle(f)
		if !noColor {
			title = styles.FileStyle.Render(title)
		}
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
		if f.Binary {
			if _, err := fmt.Fprintln(w, "Binary file"); err != nil {
				return err
			}
			continue
		}
		lines := diff.RenderTerminal(f.Hunks, diff.TerminalOptions{
			Filename:    f.Path,
			Highlighter: hl,
			Words:       f.Words,
			NoColor:     noColor,
		})
		for _, line := range lines {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

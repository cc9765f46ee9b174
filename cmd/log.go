package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/lanes/internal/app"
	"github.com/zjrosen/lanes/internal/flags"
	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/graph"
	"github.com/zjrosen/lanes/internal/log"
)

var (
	logMaxCount int
	logAll      bool
	logNoMerges bool
	logASCII    bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the commit graph",
	Long: `Print the newest commits with their lane graph, without starting the
terminal interface.

Examples:
  lanes log
  lanes log -n 200 --all
  lanes log --ascii --no-color | less`,
	Args: cobra.NoArgs,
	RunE: runLog,
}

func init() {
	logCmd.Flags().IntVarP(&logMaxCount, "max-count", "n", 0, "commits to print (default: history.page_size)")
	logCmd.Flags().BoolVar(&logAll, "all", false, "include every branch")
	logCmd.Flags().BoolVar(&logNoMerges, "no-merges", false, "omit merge commits")
	logCmd.Flags().BoolVar(&logASCII, "ascii", false, "draw the graph with ASCII characters")
	rootCmd.AddCommand(logCmd)
}

// commandServices creates the services for a one-shot command and resolves
// its repository. Watching and snapshots are off.
func commandServices() (*app.Services, git.Repository, error) {
	c := cfg
	c.Watch.Enabled = false
	c.Store.Path = ""

	repo, _, err := app.ResolveRepository(repositoryArg(nil))
	if err != nil {
		return nil, git.Repository{}, fmt.Errorf("opening repository: %w", err)
	}
	services, err := app.NewServices(c, nil)
	if err != nil {
		return nil, git.Repository{}, err
	}
	return services, repo, nil
}

func closeServices(s *app.Services) {
	if err := s.Close(); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to close services", err)
	}
}

func runLog(cmd *cobra.Command, _ []string) error {
	services, repo, err := commandServices()
	if err != nil {
		return err
	}
	defer closeServices(services)

	opts := services.LogOptions()
	opts.Limit = logMaxCount
	if opts.Limit <= 0 {
		opts.Limit = cfg.History.PageSize
	}
	opts.AllBranches = opts.AllBranches || logAll
	opts.NoMerges = opts.NoMerges || logNoMerges

	commits, err := services.Backend.Log(cmd.Context(), repo, opts)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	return writeLog(cmd.OutOrStdout(), commits, graph.RenderOptions{
		Palette: cfg.GetPalette(),
		NoColor: noColor,
		ASCII:   logASCII || services.Flags.Enabled(flags.FlagASCIIGraph),
	})
}

func writeLog(w io.Writer, commits []git.Commit, opts graph.RenderOptions) error {
	for _, line := range graph.Render(commits, graph.Layout(commits), opts) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

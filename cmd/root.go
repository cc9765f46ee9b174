package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zjrosen/lanes/internal/app"
	"github.com/zjrosen/lanes/internal/config"
	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/log"
)

func init() {
	// Query the terminal background before any Bubble Tea program starts so
	// the OSC 11 response cannot race with the input loop.
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version    = "dev"
	cfgFile    string
	cfgPath    string
	cfgErr     error
	cfg        config.Config
	debugFlag  bool
	noColor    bool
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "lanes [path]",
	Short: "A terminal commit history browser",
	Long: `A terminal user interface for browsing the commit history of a git
repository: a lane graph of branches and merges next to the diff of the
selected commit. Fetch, pull and push run without leaving the view.

The repository is the one containing path, the configured repository, or
the current directory, in that order.`,
	Version:            version,
	Args:               cobra.MaximumNArgs(1),
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
	RunE:               runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/lanes/config.yaml)")
	pf.BoolVarP(&debugFlag, "debug", "d", false,
		"write a debug log and enable the log overlay (ctrl+x)")
	pf.BoolVar(&noColor, "no-color", false, "disable colours")
	pf.StringP("repo", "r", "", "repository path")
	pf.String("backend", "", "git implementation: exec or gogit")

	rootCmd.Flags().Bool("all", false, "show commits of every branch")
	rootCmd.Flags().Bool("no-watch", false, "do not refresh when the repository changes on disk")

	_ = bindFlags(viper.GetViper(), pf, map[string]string{
		"repo":    "repository",
		"backend": "backend",
	})
	_ = bindFlags(viper.GetViper(), rootCmd.Flags(), map[string]string{
		"all": "history.all_branches",
	})
}

// bindFlags binds each flag of flagSet named in keys to its config key, so
// a flag given on the command line overrides the config file.
func bindFlags(v *viper.Viper, flagSet *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := flagSet.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %q: %w", name, err)
		}
	}
	return nil
}

func initConfig() {
	cfg, cfgPath, cfgErr = loadConfig(viper.GetViper(), cfgFile)
}

// loadConfig reads the config file at path (the default path when empty)
// into v on top of the defaults and LANES_* environment variables. A
// missing file is created from the default template.
func loadConfig(v *viper.Viper, path string) (config.Config, string, error) {
	setDefaults(v, config.Defaults())
	v.SetEnvPrefix("LANES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = config.DefaultConfigPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		err := v.ReadInConfig()
		if errors.Is(err, fs.ErrNotExist) {
			// Without a writable config dir lanes runs on defaults.
			if writeErr := config.WriteDefaultConfig(path); writeErr == nil {
				err = v.ReadInConfig()
			} else {
				err = nil
				path = ""
			}
		}
		if err != nil {
			return config.Config{}, path, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var c config.Config
	if err := v.Unmarshal(&c); err != nil {
		return config.Config{}, path, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return config.Config{}, path, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, path, nil
}

func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("repository", d.Repository)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("history.page_size", d.History.PageSize)
	v.SetDefault("history.all_branches", d.History.AllBranches)
	v.SetDefault("history.no_merges", d.History.NoMerges)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("graph.show", d.Graph.Show)
	v.SetDefault("graph.palette", d.Graph.Palette)
	v.SetDefault("diff.cache_ttl", d.Diff.CacheTTL)
	v.SetDefault("diff.highlight", d.Diff.Highlight)
	v.SetDefault("diff.style", d.Diff.Style)
	v.SetDefault("diff.word_diff", d.Diff.WordDiff)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

func debugEnabled() bool {
	return debugFlag || os.Getenv("LANES_DEBUG") != ""
}

func setup(_ *cobra.Command, _ []string) error {
	if cfgErr != nil {
		return cfgErr
	}
	if noColor || os.Getenv("NO_COLOR") != "" {
		noColor = true
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	if debugEnabled() {
		logPath := os.Getenv("LANES_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}
		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
		log.Info(log.CatConfig, "Lanes starting", "version", version, "config", cfgPath, "logPath", logPath)
	}
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return nil
}

// repositoryArg picks the repository path: the argument, then the
// configured repository. "" means the current directory.
func repositoryArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return expandHome(cfg.Repository)
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && rest[0] != '/') {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

func runApp(cmd *cobra.Command, args []string) error {
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		cfg.Watch.Enabled = false
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)

	services, err := app.NewServices(cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := services.Close(); closeErr != nil {
			log.ErrorErr(log.CatConfig, "Failed to close services", closeErr)
		}
	}()

	repo, err := services.Open(repositoryArg(args))
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	rememberRepository(repo)

	model := app.New(services, app.Options{NoColor: noColor, Debug: debugEnabled()})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// rememberRepository moves repo to the front of recent_repositories.
func rememberRepository(repo git.Repository) {
	if cfgPath == "" {
		return
	}
	repos := config.AddRecentRepository(cfg.RecentRepositories, repo.Path)
	if err := config.SaveRecentRepositories(cfgPath, repos); err != nil {
		return
	}
	cfg.RecentRepositories = repos
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

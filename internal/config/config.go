// Package config provides configuration types, defaults, and persistence for lanes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"github.com/alecthomas/chroma/v2/styles"

	"github.com/zjrosen/lanes/internal/graph"
	"github.com/zjrosen/lanes/internal/log"
	"github.com/zjrosen/lanes/internal/tracing"
)

// Backend names accepted by the backend key.
const (
	BackendExec  = "exec"
	BackendGoGit = "gogit"
)

// MaxRecentRepositories caps the recent_repositories list.
const MaxRecentRepositories = 10

// Config holds all lanes configuration.
type Config struct {
	// Repository is opened when no path argument is given.
	Repository string `mapstructure:"repository"`

	// Backend selects the git implementation: "exec" (git CLI) or "gogit".
	Backend string `mapstructure:"backend"`

	History HistoryConfig  `mapstructure:"history"`
	Remote  RemoteConfig   `mapstructure:"remote"`
	Graph   GraphConfig    `mapstructure:"graph"`
	Diff    DiffConfig     `mapstructure:"diff"`
	Watch   WatchConfig    `mapstructure:"watch"`
	Store   StoreConfig    `mapstructure:"store"`
	Tracing tracing.Config `mapstructure:"tracing"`

	// Flags toggles features by name. See internal/flags.
	Flags map[string]bool `mapstructure:"flags"`

	RecentRepositories []string `mapstructure:"recent_repositories"`
}

// HistoryConfig controls how commits are paged from the backend.
type HistoryConfig struct {
	PageSize    int  `mapstructure:"page_size"`
	AllBranches bool `mapstructure:"all_branches"`
	NoMerges    bool `mapstructure:"no_merges"`
}

// RemoteConfig controls fetch, pull and push.
type RemoteConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// GraphConfig controls the commit graph column.
type GraphConfig struct {
	Show bool `mapstructure:"show"`

	// Palette holds lane colours as hex strings, cycled by lane index.
	Palette []string `mapstructure:"palette"`
}

// DiffConfig controls diff loading and display.
type DiffConfig struct {
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	Highlight bool          `mapstructure:"highlight"`
	Style     string        `mapstructure:"style"` // chroma style name
	WordDiff  bool          `mapstructure:"word_diff"`
}

// WatchConfig controls refresh on git directory changes.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// StoreConfig controls the commit snapshot database.
// An empty Path disables snapshots.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// DefaultConfigDir returns ~/.config/lanes, or empty string if the home dir
// is unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "lanes")
}

// DefaultConfigPath returns ~/.config/lanes/config.yaml.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultStorePath returns ~/.config/lanes/lanes.db.
func DefaultStorePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "lanes.db")
}

// DefaultTracesFilePath returns ~/.config/lanes/traces/traces.jsonl.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultPalette returns the lane colours used when graph.palette is empty.
func DefaultPalette() []string {
	return slices.Clone(graph.DefaultPalette)
}

// Defaults returns the default configuration.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = DefaultTracesFilePath()

	return Config{
		Backend: BackendExec,
		History: HistoryConfig{
			PageSize: 50,
		},
		Remote: RemoteConfig{
			Timeout: 60 * time.Second,
		},
		Graph: GraphConfig{
			Show:    true,
			Palette: DefaultPalette(),
		},
		Diff: DiffConfig{
			CacheTTL:  10 * time.Minute,
			Highlight: true,
			Style:     "monokai",
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 300 * time.Millisecond,
		},
		Store: StoreConfig{
			Path: DefaultStorePath(),
		},
		Tracing: tc,
		Flags:   map[string]bool{},
	}
}

// Validate checks every section and returns the first problem found.
func (c Config) Validate() error {
	if err := ValidateBackend(c.Backend); err != nil {
		return err
	}
	if err := ValidateHistory(c.History); err != nil {
		return err
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative, got %s", c.Remote.Timeout)
	}
	if err := ValidateGraph(c.Graph); err != nil {
		return err
	}
	if err := ValidateDiff(c.Diff); err != nil {
		return err
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateBackend checks the backend name. Empty means the default.
func ValidateBackend(name string) error {
	switch name {
	case "", BackendExec, BackendGoGit:
		return nil
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendExec, BackendGoGit, name)
	}
}

// ValidateHistory checks paging settings.
func ValidateHistory(h HistoryConfig) error {
	if h.PageSize < 0 || h.PageSize > 10000 {
		return fmt.Errorf("history.page_size must be between 0 and 10000, got %d", h.PageSize)
	}
	return nil
}

// ValidateGraph checks that every palette entry is a #RRGGBB colour.
func ValidateGraph(g GraphConfig) error {
	for i, c := range g.Palette {
		if !hexColor.MatchString(c) {
			return fmt.Errorf("graph.palette[%d] must be a hex colour like #4E9BE6, got %q", i, c)
		}
	}
	return nil
}

// ValidateDiff checks the cache ttl and highlight style.
func ValidateDiff(d DiffConfig) error {
	if d.CacheTTL < 0 {
		return fmt.Errorf("diff.cache_ttl must not be negative, got %s", d.CacheTTL)
	}
	if d.Style != "" {
		if _, ok := styles.Registry[d.Style]; !ok {
			return fmt.Errorf("diff.style %q is not a known chroma style", d.Style)
		}
	}
	return nil
}

// ValidateTracing validates tracing configuration.
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}

	// Path requirements only matter when tracing is on.
	if tc.Enabled {
		if tc.Exporter == "file" && tc.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// GetPalette returns the configured palette, or DefaultPalette when empty.
func (c Config) GetPalette() []string {
	if len(c.Graph.Palette) == 0 {
		return DefaultPalette()
	}
	return c.Graph.Palette
}

// DefaultConfigTemplate returns the default config as YAML with comments.
func DefaultConfigTemplate() string {
	return `# Lanes Configuration

# Repository opened when lanes is started without a path.
# repository: ~/src/project

# Git implementation: "exec" shells out to git, "gogit" uses go-git.
backend: exec

history:
  # Commits requested per page. The window grows by this much on scroll.
  page_size: 50
  # Include every branch rather than only HEAD.
  all_branches: false
  # Hide merge commits.
  no_merges: false

remote:
  # Fetch, pull and push are abandoned after this long.
  timeout: 60s

graph:
  show: true
  # Lane colours, cycled by lane index.
  palette:
    - "#4E9BE6"
    - "#E6A23C"
    - "#67C23A"
    - "#F56C6C"
    - "#9B59B6"
    - "#1ABC9C"
    - "#E67E22"
    - "#95A5A6"

diff:
  # How long parsed commit diffs stay cached.
  cache_ttl: 10m
  # Syntax highlighting with a chroma style.
  highlight: true
  style: monokai
  # Mark changed words inside modified lines.
  word_diff: false

watch:
  # Refresh history when refs or HEAD change on disk.
  enabled: true
  debounce: 300ms

store:
  # SQLite file holding the last loaded window per repository.
  # Leave empty to disable.
  # path: ~/.config/lanes/lanes.db

tracing:
  enabled: false
  # none, file, stdout, otlp
  exporter: file
  # file_path: ~/.config/lanes/traces/traces.jsonl
  otlp_endpoint: localhost:4317
  sample_rate: 1.0

# Feature flags.
# flags:
#   ascii-graph: true
#   show-stashes: true
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}

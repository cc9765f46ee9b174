package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/lanes/internal/tracing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, BackendExec, cfg.Backend)
	require.Equal(t, 50, cfg.History.PageSize)
	require.False(t, cfg.History.AllBranches)
	require.Equal(t, 60*time.Second, cfg.Remote.Timeout)
	require.True(t, cfg.Graph.Show)
	require.Len(t, cfg.Graph.Palette, 8)
	require.Equal(t, 10*time.Minute, cfg.Diff.CacheTTL)
	require.Equal(t, "monokai", cfg.Diff.Style)
	require.True(t, cfg.Watch.Enabled)
	require.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
	require.False(t, cfg.Tracing.Enabled)
	require.NotNil(t, cfg.Flags)
	require.NoError(t, cfg.Validate())
}

func TestDefaultPalette_ReturnsCopy(t *testing.T) {
	p := DefaultPalette()
	p[0] = "#000000"
	require.NotEqual(t, "#000000", DefaultPalette()[0])
}

func TestGetPalette(t *testing.T) {
	cfg := Config{}
	require.Equal(t, DefaultPalette(), cfg.GetPalette())

	cfg.Graph.Palette = []string{"#FFFFFF"}
	require.Equal(t, []string{"#FFFFFF"}, cfg.GetPalette())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty backend", mutate: func(c *Config) { c.Backend = "" }},
		{name: "gogit backend", mutate: func(c *Config) { c.Backend = BackendGoGit }},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "libgit2" }, wantErr: "backend must be"},
		{name: "negative page size", mutate: func(c *Config) { c.History.PageSize = -1 }, wantErr: "history.page_size"},
		{name: "huge page size", mutate: func(c *Config) { c.History.PageSize = 10001 }, wantErr: "history.page_size"},
		{name: "negative timeout", mutate: func(c *Config) { c.Remote.Timeout = -time.Second }, wantErr: "remote.timeout"},
		{name: "bad palette", mutate: func(c *Config) { c.Graph.Palette = []string{"#4E9BE6", "blue"} }, wantErr: "graph.palette[1]"},
		{name: "short hex", mutate: func(c *Config) { c.Graph.Palette = []string{"#FFF"} }, wantErr: "graph.palette[0]"},
		{name: "negative ttl", mutate: func(c *Config) { c.Diff.CacheTTL = -time.Minute }, wantErr: "diff.cache_ttl"},
		{name: "unknown style", mutate: func(c *Config) { c.Diff.Style = "no-such-style" }, wantErr: "diff.style"},
		{name: "empty style", mutate: func(c *Config) { c.Diff.Style = "" }},
		{name: "negative debounce", mutate: func(c *Config) { c.Watch.Debounce = -time.Millisecond }, wantErr: "watch.debounce"},
		{name: "bad sample rate", mutate: func(c *Config) { c.Tracing.SampleRate = 2 }, wantErr: "tracing.sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     tracing.Config
		wantErr string
	}{
		{name: "disabled zero value", cfg: tracing.Config{}},
		{name: "sample rate below zero", cfg: tracing.Config{SampleRate: -0.1}, wantErr: "sample_rate"},
		{name: "unknown exporter", cfg: tracing.Config{Exporter: "jaeger"}, wantErr: "tracing.exporter"},
		{name: "file without path when disabled", cfg: tracing.Config{Exporter: "file"}},
		{name: "file without path", cfg: tracing.Config{Enabled: true, Exporter: "file"}, wantErr: "tracing.file_path"},
		{name: "otlp without endpoint", cfg: tracing.Config{Enabled: true, Exporter: "otlp"}, wantErr: "tracing.otlp_endpoint"},
		{name: "stdout", cfg: tracing.Config{Enabled: true, Exporter: "stdout", SampleRate: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(DefaultConfigTemplate())))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	want := Defaults()
	require.Equal(t, want.Backend, cfg.Backend)
	require.Equal(t, want.History, cfg.History)
	require.Equal(t, want.Remote, cfg.Remote)
	require.Equal(t, want.Graph, cfg.Graph)
	require.Equal(t, want.Diff, cfg.Diff)
	require.Equal(t, want.Watch, cfg.Watch)
	require.Equal(t, want.Tracing.Exporter, cfg.Tracing.Exporter)
	require.Equal(t, want.Tracing.SampleRate, cfg.Tracing.SampleRate)
	require.NoError(t, cfg.Validate())
}

func TestWriteDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestDefaultPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	require.Equal(t, filepath.Join(home, ".config", "lanes", "config.yaml"), DefaultConfigPath())
	require.Equal(t, filepath.Join(home, ".config", "lanes", "lanes.db"), DefaultStorePath())
	require.Equal(t, filepath.Join(home, ".config", "lanes", "traces", "traces.jsonl"), DefaultTracesFilePath())
}

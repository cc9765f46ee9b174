// Package app contains the root application model and the services it drives.
package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/lanes/internal/flags"
	"github.com/zjrosen/lanes/internal/log"
	"github.com/zjrosen/lanes/internal/pubsub"
	"github.com/zjrosen/lanes/internal/ui/historyview"
	"github.com/zjrosen/lanes/internal/ui/logoverlay"
	"github.com/zjrosen/lanes/internal/watcher"
)

var toggleLogs = key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "logs"))

// Options configures the root model.
type Options struct {
	NoColor bool
	// Debug enables the log overlay (ctrl+x).
	Debug bool
}

// Model is the root application state.
type Model struct {
	services *Services
	history  historyview.Model

	debug bool
	logs  logoverlay.Model

	watcherListener *pubsub.ContinuousListener[watcher.Event]

	width  int
	height int
}

// New creates the root model over s. Open a repository on s first so the
// watcher, when enabled, is already running.
func New(s *Services, opts Options) Model {
	cfg := s.Config
	hv := historyview.New(s.Context(), s.Sync, s.Details, s.Remote, s.Notices, historyview.Options{
		LogOptions:  s.LogOptions(),
		ShowGraph:   cfg.Graph.Show,
		ASCIIGraph:  s.Flags.Enabled(flags.FlagASCIIGraph),
		Palette:     cfg.GetPalette(),
		NoColor:     opts.NoColor,
		Highlighter: s.Highlighter,
		ShowStashes: s.Flags.Enabled(flags.FlagShowStashes),
	})

	m := Model{
		services: s,
		history:  hv,
		debug:    opts.Debug,
	}
	if opts.Debug {
		if b := log.Broker(); b != nil {
			m.logs = logoverlay.New(s.Context(), b)
		} else {
			m.logs = logoverlay.New(s.Context(), nil)
		}
	}
	if w := s.Watcher(); w != nil {
		m.watcherListener = pubsub.NewContinuousListener(s.Context(), w.Broker())
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.history.Init()}
	if m.watcherListener != nil {
		cmds = append(cmds, m.watcherListener.Listen())
	}
	if m.debug {
		cmds = append(cmds, m.logs.Listen())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.history = m.history.SetSize(msg.Width, msg.Height)
		m.logs.SetSize(msg.Width, msg.Height)
		return m, nil

	case pubsub.Event[string]:
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		return m, cmd

	case pubsub.Event[watcher.Event]:
		switch msg.Payload.Kind {
		case watcher.GitDirChanged:
			log.Debug(log.CatWatcher, "Git directory changed, refreshing", "path", msg.Payload.Path)
			m.services.HandleGitDirChanged()
		case watcher.WatcherError:
			log.Warn(log.CatWatcher, "Watcher error received", "error", msg.Payload.Err)
		}
		return m, m.watcherListener.Listen()

	case tea.KeyMsg:
		if m.debug && key.Matches(msg, toggleLogs) {
			m.logs.Toggle()
			return m, nil
		}
		// The visible overlay takes every key except ctrl+c.
		if m.logs.Visible() && msg.String() != "ctrl+c" {
			var cmd tea.Cmd
			m.logs, cmd = m.logs.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	view := m.history.View()
	if m.debug && m.logs.Visible() {
		view = m.logs.Overlay(view)
	}
	return view
}

// History returns the history screen.
func (m Model) History() historyview.Model {
	return m.history
}

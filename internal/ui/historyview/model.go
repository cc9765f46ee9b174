// Package historyview is the commit history screen: the commit graph on
// the left and the details of the selected commit on the right.
package historyview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/lanes/internal/details"
	"github.com/zjrosen/lanes/internal/diff"
	"github.com/zjrosen/lanes/internal/git"
	"github.com/zjrosen/lanes/internal/graph"
	"github.com/zjrosen/lanes/internal/history"
	"github.com/zjrosen/lanes/internal/keys"
	"github.com/zjrosen/lanes/internal/log"
	"github.com/zjrosen/lanes/internal/pubsub"
	"github.com/zjrosen/lanes/internal/ui/markdown"
	"github.com/zjrosen/lanes/internal/ui/styles"
)

// loadMoreThreshold is how close to the last loaded commit the cursor gets
// before the next page is requested.
const loadMoreThreshold = 5

// Synchronizer is the part of history.Synchronizer the view drives.
type Synchronizer interface {
	pubsub.Subscriber[history.Change]
	Current() history.Snapshot
	Refresh()
	LoadMore(ctx context.Context) (int, error)
	SetActiveCommit(id string)
	SetLogOptions(opts git.LogOptions)
}

// DetailsSource delivers parsed commit diffs.
type DetailsSource interface {
	pubsub.Subscriber[details.Details]
	Stashes(ctx context.Context, repo git.Repository) ([]git.StashEntry, error)
}

// Remote runs fetch, pull and push. See remote.Service.
type Remote interface {
	Push(repo git.Repository, force bool, onBehind, onTimeout func()) error
	Fetch(repo git.Repository, onTimeout func()) error
	Pull(repo git.Repository, onConflict func(msg string), onTimeout func()) error
	Wait()
	Err() error
}

// Options configures the view.
type Options struct {
	LogOptions  git.LogOptions
	ShowGraph   bool
	ASCIIGraph  bool
	Palette     []string
	NoColor     bool
	Highlighter *diff.Highlighter // nil disables syntax highlighting
	ShowStashes bool              // enables the stash list key
}

type focusPane int

const (
	focusHistory focusPane = iota
	focusDetails
)

type loadMoreMsg struct {
	n   int
	err error
}

type remoteOutcome int

const (
	outcomeDone remoteOutcome = iota
	outcomeBehind
	outcomeTimeout
	outcomeConflict
	outcomeFailed
)

type remoteDoneMsg struct {
	op      string
	outcome remoteOutcome
	message string
	err     error
}

type stashesMsg struct {
	entries []git.StashEntry
	err     error
}

// Model is the history screen state.
type Model struct {
	ctx     context.Context
	sync    Synchronizer
	details DetailsSource
	remote  Remote
	opts    Options

	keys     keys.KeyMap
	pushKeys keys.PushKeyMap
	help     help.Model
	md       *markdown.Renderer

	syncListener    *pubsub.ContinuousListener[history.Change]
	detailsListener *pubsub.ContinuousListener[details.Details]
	noticeListener  *pubsub.ContinuousListener[Notice]

	snap       history.Snapshot
	layout     graph.Assignment
	rows       []string
	cursor     int
	selectedID string
	offset     int
	loading    bool
	exhausted  bool
	logOpts    git.LogOptions

	current     details.Details
	hasDetails  bool
	file        int
	stashes     []git.StashEntry
	showStashes bool
	viewport    viewport.Model
	focus       focusPane

	notice     Notice
	remoteOp   string
	pushPrompt bool
	showHelp   bool
	showGraph  bool

	width  int
	height int
}

// New creates the history view. notices may be nil.
func New(ctx context.Context, sync Synchronizer, src DetailsSource, remote Remote, notices pubsub.Subscriber[Notice], opts Options) Model {
	m := Model{
		ctx:             ctx,
		sync:            sync,
		details:         src,
		remote:          remote,
		opts:            opts,
		keys:            keys.DefaultKeyMap(),
		pushKeys:        keys.DefaultPushKeyMap(),
		help:            help.New(),
		syncListener:    pubsub.NewContinuousListener(ctx, sync),
		detailsListener: pubsub.NewContinuousListener(ctx, src),
		logOpts:         opts.LogOptions,
		showGraph:       opts.ShowGraph,
		viewport:        viewport.New(0, 0),
	}
	if notices != nil {
		m.noticeListener = pubsub.NewContinuousListener(ctx, notices)
	}
	m.applySnapshot(sync.Current())
	return m
}

// Init starts listening for synchronizer, details and notice events.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.syncListener.Listen(), m.detailsListener.Listen()}
	if m.noticeListener != nil {
		cmds = append(cmds, m.noticeListener.Listen())
	}
	return tea.Batch(cmds...)
}

// SetSize resizes the view.
func (m Model) SetSize(width, height int) Model {
	m.width, m.height = width, height
	if width > 0 {
		md, err := markdown.New(max(m.detailsWidth()-4, 20))
		if err != nil {
			log.ErrorErr(log.CatUI, "Failed to create markdown renderer", err)
		} else {
			m.md = md
		}
	}
	m.viewport.Width = max(m.detailsWidth()-2, 1)
	m.viewport.Height = max(m.paneHeight()-2, 1)
	m.renderRows()
	m.clampOffset()
	m.refreshDetails()
	return m
}

// Commits returns the commits currently shown.
func (m Model) Commits() []git.Commit { return m.snap.Commits }

// Cursor returns the index of the selected row.
func (m Model) Cursor() int { return m.cursor }

// Notice returns the message shown in the status bar.
func (m Model) Notice() Notice { return m.notice }

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.SetSize(msg.Width, msg.Height), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pubsub.Event[history.Change]:
		m.handleChange(msg)
		return m, m.syncListener.Listen()

	case pubsub.Event[details.Details]:
		if msg.Payload.CommitID == m.selectedID {
			m.current = msg.Payload
			m.hasDetails = msg.Payload.CommitID != ""
			m.file = 0
			m.refreshDetails()
		}
		return m, m.detailsListener.Listen()

	case pubsub.Event[Notice]:
		m.notice = msg.Payload
		return m, m.noticeListener.Listen()

	case loadMoreMsg:
		m.loading = false
		switch {
		case msg.err == nil:
			m.exhausted = msg.n == 0
		case errors.Is(msg.err, context.Canceled), errors.Is(msg.err, history.ErrLoadInProgress):
		default:
			m.notice = Notice{Level: NoticeError, Text: "Loading more commits failed: " + msg.err.Error()}
		}
		return m, nil

	case remoteDoneMsg:
		m.remoteOp = ""
		m.notice = remoteNotice(msg)
		m.pushPrompt = msg.outcome == outcomeBehind
		return m, nil

	case stashesMsg:
		if msg.err != nil {
			m.notice = Notice{Level: NoticeError, Text: "Listing stashes failed: " + msg.err.Error()}
			return m, nil
		}
		m.stashes = msg.entries
		m.showStashes = true
		m.refreshDetails()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleChange(ev pubsub.Event[history.Change]) {
	switch ev.Type {
	case pubsub.RepositoryChangedEvent:
		m.cursor, m.offset = 0, 0
		m.selectedID = ""
		m.exhausted = false
		m.hasDetails = false
		m.showStashes = false
		m.current = details.Details{}
	case pubsub.OperationFailedEvent:
		if ev.Payload.Err != nil {
			m.notice = Notice{Level: NoticeError, Text: ev.Payload.Err.Error()}
		}
	case pubsub.RemoteRefreshedEvent:
		m.notice = Notice{Level: NoticeInfo, Text: "History updated from upstream"}
	}
	m.applySnapshot(ev.Payload.Snapshot)
}

// applySnapshot takes a new snapshot, keeping the cursor on the selected
// commit when it is still present. Snapshots may lag behind the cursor, so
// the view's own selection wins over snap.Active.
func (m *Model) applySnapshot(snap history.Snapshot) {
	m.snap = snap
	m.layout = graph.Layout(snap.Commits)

	id := m.selectedID
	if id == "" {
		id = snap.Active
	}
	found := false
	for i, c := range snap.Commits {
		if id != "" && c.ID == id {
			m.cursor, found = i, true
			break
		}
	}
	if !found {
		m.cursor = min(m.cursor, max(len(snap.Commits)-1, 0))
	}

	if len(snap.Commits) == 0 {
		m.selectedID = ""
	} else if cur := snap.Commits[m.cursor].ID; cur != m.selectedID {
		m.selectedID = cur
		m.sync.SetActiveCommit(cur)
	}
	m.renderRows()
	m.clampOffset()
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.pushPrompt {
		switch {
		case key.Matches(msg, m.pushKeys.Force):
			m.pushPrompt = false
			return m.startRemote("push", true)
		case key.Matches(msg, m.pushKeys.Cancel):
			m.pushPrompt = false
			m.notice = Notice{}
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil
	case key.Matches(msg, m.keys.Escape):
		if m.showStashes {
			m.showStashes = false
			m.refreshDetails()
		} else {
			m.focus = focusHistory
		}
		return m, nil
	case key.Matches(msg, m.keys.Focus):
		if m.focus == focusHistory {
			m.focus = focusDetails
		} else {
			m.focus = focusHistory
		}
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		m.sync.Refresh()
		m.notice = Notice{Level: NoticeInfo, Text: "Refreshing"}
		return m, nil
	case key.Matches(msg, m.keys.Fetch):
		return m.startRemote("fetch", false)
	case key.Matches(msg, m.keys.Pull):
		return m.startRemote("pull", false)
	case key.Matches(msg, m.keys.Push):
		return m.startRemote("push", false)
	case key.Matches(msg, m.keys.Stashes):
		if !m.opts.ShowStashes || !m.snap.HasRepository {
			return m, nil
		}
		return m, m.loadStashes()
	case key.Matches(msg, m.keys.AllBranches):
		m.logOpts.AllBranches = !m.logOpts.AllBranches
		m.exhausted = false
		m.sync.SetLogOptions(m.logOpts)
		return m, nil
	case key.Matches(msg, m.keys.NoMerges):
		m.logOpts.NoMerges = !m.logOpts.NoMerges
		m.exhausted = false
		m.sync.SetLogOptions(m.logOpts)
		return m, nil
	case key.Matches(msg, m.keys.ToggleGraph):
		m.showGraph = !m.showGraph
		m.renderRows()
		return m, nil
	case key.Matches(msg, m.keys.NextFile):
		if m.file < len(m.current.Files)-1 {
			m.file++
			m.refreshDetails()
		}
		return m, nil
	case key.Matches(msg, m.keys.PrevFile):
		if m.file > 0 {
			m.file--
			m.refreshDetails()
		}
		return m, nil
	}

	if m.focus == focusDetails {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	page := max(m.listHeight()-1, 1)
	switch {
	case key.Matches(msg, m.keys.Up):
		return m.moveTo(m.cursor - 1)
	case key.Matches(msg, m.keys.Down):
		return m.moveTo(m.cursor + 1)
	case key.Matches(msg, m.keys.PageUp):
		return m.moveTo(m.cursor - page)
	case key.Matches(msg, m.keys.PageDown):
		return m.moveTo(m.cursor + page)
	case key.Matches(msg, m.keys.Top):
		return m.moveTo(0)
	case key.Matches(msg, m.keys.Bottom):
		return m.moveTo(len(m.snap.Commits) - 1)
	}
	return m, nil
}

// moveTo selects row i, clamped to the loaded commits, and requests the
// next page when the cursor nears the end of the window.
func (m Model) moveTo(i int) (Model, tea.Cmd) {
	n := len(m.snap.Commits)
	if n == 0 {
		return m, nil
	}
	i = min(max(i, 0), n-1)
	if i != m.cursor {
		m.cursor = i
		m.selectedID = m.snap.Commits[i].ID
		m.clampOffset()
		m.sync.SetActiveCommit(m.selectedID)
		m.refreshDetails()
	}
	if i >= n-loadMoreThreshold && !m.loading && !m.exhausted {
		m.loading = true
		return m, m.loadMore()
	}
	return m, nil
}

func (m Model) loadMore() tea.Cmd {
	ctx, sync := m.ctx, m.sync
	return func() tea.Msg {
		n, err := sync.LoadMore(ctx)
		return loadMoreMsg{n: n, err: err}
	}
}

func (m Model) loadStashes() tea.Cmd {
	ctx, src, repo := m.ctx, m.details, m.snap.Repository
	return func() tea.Msg {
		entries, err := src.Stashes(ctx, repo)
		return stashesMsg{entries: entries, err: err}
	}
}

// startRemote runs a remote operation and reports its outcome once the
// service is idle again.
func (m Model) startRemote(op string, force bool) (Model, tea.Cmd) {
	if !m.snap.HasRepository {
		return m, nil
	}
	if m.remoteOp != "" {
		m.notice = Notice{Level: NoticeWarn, Text: m.remoteOp + " is still running"}
		return m, nil
	}

	repo, remote := m.snap.Repository, m.remote
	done := &remoteDoneMsg{op: op}
	onTimeout := func() { done.outcome = outcomeTimeout }

	var err error
	switch op {
	case "fetch":
		err = remote.Fetch(repo, onTimeout)
	case "pull":
		err = remote.Pull(repo, func(msg string) {
			done.outcome, done.message = outcomeConflict, msg
		}, onTimeout)
	case "push":
		err = remote.Push(repo, force, func() { done.outcome = outcomeBehind }, onTimeout)
	}
	if err != nil {
		m.notice = Notice{Level: NoticeWarn, Text: err.Error()}
		return m, nil
	}

	m.remoteOp = op
	m.notice = Notice{Level: NoticeInfo, Text: op + "..."}
	return m, func() tea.Msg {
		remote.Wait()
		if err := remote.Err(); err != nil && done.outcome == outcomeDone {
			done.outcome, done.err = outcomeFailed, err
		}
		return *done
	}
}

func remoteNotice(msg remoteDoneMsg) Notice {
	switch msg.outcome {
	case outcomeBehind:
		return Notice{Level: NoticeWarn, Text: "Push rejected: the remote branch has new commits. F to force push, esc to cancel"}
	case outcomeTimeout:
		return Notice{Level: NoticeWarn, Text: msg.op + " timed out, try again later"}
	case outcomeConflict:
		return Notice{Level: NoticeError, Text: "Pull conflict: " + msg.message}
	case outcomeFailed:
		return Notice{Level: NoticeError, Text: msg.op + " failed: " + msg.err.Error()}
	default:
		return Notice{Level: NoticeInfo, Text: msg.op + " finished"}
	}
}

func (m Model) historyWidth() int {
	if m.width < 60 {
		return m.width
	}
	return m.width * 11 / 20
}

func (m Model) detailsWidth() int {
	return m.width - m.historyWidth()
}

// paneHeight leaves one line for the status bar.
func (m Model) paneHeight() int {
	return max(m.height-1, 3)
}

func (m Model) listHeight() int {
	return max(m.paneHeight()-2, 1)
}

func (m *Model) renderRows() {
	layout := m.layout
	if !m.showGraph {
		layout = graph.Assignment{}
	}
	m.rows = graph.Render(m.snap.Commits, layout, graph.RenderOptions{
		Width:   max(m.historyWidth()-4, 0),
		Palette: m.opts.Palette,
		NoColor: m.opts.NoColor,
		ASCII:   m.opts.ASCIIGraph,
	})
}

func (m *Model) clampOffset() {
	h := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
	m.offset = max(m.offset, 0)
}

func (m *Model) refreshDetails() {
	m.viewport.SetContent(m.detailsContent())
	m.viewport.GotoTop()
}

func (m Model) selected() (git.Commit, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Commits) {
		return git.Commit{}, false
	}
	return m.snap.Commits[m.cursor], true
}

func (m Model) detailsContent() string {
	if m.showStashes {
		return stashList(m.stashes)
	}
	c, ok := m.selected()
	if !ok {
		return styles.MutedStyle.Render("No commit selected")
	}

	var sb strings.Builder
	sb.WriteString(styles.CommitIDStyle.Render("commit " + c.ID))
	sb.WriteString("\n")
	sb.WriteString(styles.AuthorStyle.Render(c.Author))
	if !c.Date.IsZero() {
		sb.WriteString(styles.MutedStyle.Render("  " + c.Date.Format("2006-01-02 15:04")))
	}
	sb.WriteString("\n\n")
	if m.md != nil {
		sb.WriteString(m.md.RenderCommit(c))
	} else {
		sb.WriteString(strings.TrimSpace(c.Message))
	}
	sb.WriteString("\n\n")

	switch {
	case !m.hasDetails || m.current.CommitID != c.ID:
		sb.WriteString(styles.MutedStyle.Render("Loading changes..."))
		return sb.String()
	case m.current.Err != nil:
		sb.WriteString(styles.ErrorStyle.Render("Loading changes failed: " + m.current.Err.Error()))
		return sb.String()
	}

	added, removed := m.current.Stats()
	fmt.Fprintf(&sb, "%d files changed, %s %s\n",
		len(m.current.Files),
		styles.AddedStyle.Render(fmt.Sprintf("+%d", added)),
		styles.RemovedStyle.Render(fmt.Sprintf("-%d", removed)))
	for i, f := range m.current.Files {
		marker := "  "
		if i == m.file {
			marker = "> "
		}
		fmt.Fprintf(&sb, "%s%s %s %s\n", marker, fileLabel(f),
			styles.AddedStyle.Render(fmt.Sprintf("+%d", f.Added)),
			styles.RemovedStyle.Render(fmt.Sprintf("-%d", f.Removed)))
	}

	if m.file < len(m.current.Files) {
		f := m.current.Files[m.file]
		sb.WriteString("\n")
		sb.WriteString(styles.FileStyle.Render(fileLabel(f)))
		sb.WriteString("\n")
		lines := diff.RenderTerminal(f.Hunks, diff.TerminalOptions{
			Filename:    f.Path,
			Highlighter: m.opts.Highlighter,
			Words:       f.Words,
			NoColor:     m.opts.NoColor,
		})
		sb.WriteString(strings.Join(lines, "\n"))
	}
	return sb.String()
}

func fileLabel(f details.FileDiff) string {
	if f.OldPath != "" && f.OldPath != f.Path {
		return f.OldPath + " → " + f.Path
	}
	return f.Path
}

func stashList(entries []git.StashEntry) string {
	if len(entries) == 0 {
		return styles.MutedStyle.Render("No stashes")
	}
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(styles.CommitIDStyle.Render(e.ID))
		sb.WriteString(" ")
		sb.WriteString(e.Message)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// View renders the screen.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	status := fmt.Sprintf("%d commits", len(m.snap.Commits))
	if m.loading {
		status += " · loading"
	}
	title := "History"
	if m.snap.HasRepository {
		title = m.snap.Repository.Path
	}

	var list strings.Builder
	end := min(m.offset+m.listHeight(), len(m.rows))
	for i := m.offset; i < end; i++ {
		if i > m.offset {
			list.WriteString("\n")
		}
		if i == m.cursor {
			list.WriteString(styles.SelectedStyle.Render(">") + " ")
		} else {
			list.WriteString("  ")
		}
		list.WriteString(m.rows[i])
	}
	if len(m.rows) == 0 {
		list.WriteString(styles.MutedStyle.Render("No commits"))
	}

	left := styles.Pane{
		Title:   title,
		Status:  status,
		Width:   m.historyWidth(),
		Height:  m.paneHeight(),
		Focused: m.focus == focusHistory,
	}.Render(list.String())

	body := left
	if m.detailsWidth() > 0 {
		detailsTitle := "Details"
		if m.showStashes {
			detailsTitle = "Stashes"
		}
		right := styles.Pane{
			Title:   detailsTitle,
			Width:   m.detailsWidth(),
			Height:  m.paneHeight(),
			Focused: m.focus == focusDetails,
		}.Render(m.viewport.View())
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	}

	if m.showHelp {
		return lipgloss.JoinVertical(lipgloss.Left, body, m.help.FullHelpView(m.keys.FullHelp()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusBar())
}

func (m Model) statusBar() string {
	if m.notice.Text != "" {
		return styles.StatusBarStyle.Render(m.notice.Render())
	}
	return styles.StatusBarStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp()))
}

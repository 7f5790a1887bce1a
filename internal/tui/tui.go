// Package tui provides a Bubble Tea terminal user interface for photo-mirror.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/handiism/photo-mirror/internal/config"
	"github.com/handiism/photo-mirror/internal/engine"
	"github.com/handiism/photo-mirror/internal/mirror"
	"github.com/handiism/photo-mirror/internal/model"
	"github.com/handiism/photo-mirror/internal/transfer"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5181B8")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	albumStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))
)

// maxLogs is how many progress lines stay on screen.
const maxLogs = 10

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateInitializing
	StateSyncing
	StateComplete
	StateError
)

// Input fields, in tab order.
const (
	fieldAccount = iota
	fieldAlbums
	fieldCount
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   engine.ProgressLevel
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state    State
	inputs   []textinput.Model
	focus    int
	spinner  spinner.Model
	progress progress.Model
	settings *config.Settings
	log      logrus.FieldLogger
	logs     []LogEntry
	albums   []string
	err      error

	// Sync context
	ctx    context.Context
	cancel context.CancelFunc

	manager *mirror.Manager
	events  chan engine.ProgressEvent

	// Sync progress
	processed   int32
	total       int32
	albumsDone  int
	albumsTotal int
	tally       model.Tally
	warnings    int

	// quitting is set when ctrl+c arrives mid-run.
	quitting bool

	// Options
	allAlbums bool
	dryRun    bool
	verbose   bool

	width  int
	height int
}

// NewModel creates a new TUI model.
func NewModel(settings *config.Settings, log logrus.FieldLogger) Model {
	account := textinput.New()
	account.Placeholder = "id or screen name, e.g. durov"
	account.Prompt = "Account: "
	account.CharLimit = 100
	account.Width = 40
	account.Focus()

	albums := textinput.New()
	albums.Placeholder = "profile, wall, 136592355"
	albums.Prompt = "Albums:  "
	albums.CharLimit = 500
	albums.Width = 40
	albums.SetValue("profile")

	count := textinput.New()
	count.Placeholder = "5 or all"
	count.Prompt = "Count:   "
	count.CharLimit = 10
	count.Width = 10
	count.SetValue(settings.Sync.DefaultCount)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5181B8"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:    StateInput,
		inputs:   []textinput.Model{account, albums, count},
		spinner:  sp,
		progress: prog,
		settings: settings,
		log:      log,
		logs:     make([]LogEntry, 0),
		events:   make(chan engine.ProgressEvent, 256),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForEvent())
}

// Message types
type (
	// ProgressMsg carries one engine progress event.
	ProgressMsg struct {
		Event engine.ProgressEvent
	}

	// InitDoneMsg is sent when the account is resolved and albums queued.
	InitDoneMsg struct {
		Albums  []string
		Manager *mirror.Manager
		Err     error
	}

	// SyncDoneMsg is sent when every queued album has been synced.
	SyncDoneMsg struct {
		Reports []*engine.Report
		Err     error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.running() {
				// Quit once the run has verified and written its manifest.
				m.quitting = true
				m.cancelSync()
				return m, nil
			}
			m.closeManager()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.running() {
				m.cancelSync()
			}
			return m, nil

		case "tab", "down":
			if m.state == StateInput {
				m.setFocus((m.focus + 1) % len(m.inputs))
				return m, nil
			}

		case "shift+tab", "up":
			if m.state == StateInput {
				m.setFocus((m.focus + len(m.inputs) - 1) % len(m.inputs))
				return m, nil
			}

		case "enter":
			if m.state == StateInput && strings.TrimSpace(m.inputs[fieldAccount].Value()) != "" {
				req, err := m.request()
				if err != nil {
					m.state = StateError
					m.err = err
					return m, nil
				}
				m.state = StateInitializing
				return m, tea.Batch(m.initialize(req), m.spinner.Tick)
			}

		case "ctrl+a":
			if m.state == StateInput {
				m.allAlbums = !m.allAlbums
				return m, nil
			}

		case "ctrl+n":
			if m.state == StateInput {
				m.dryRun = !m.dryRun
				return m, nil
			}

		case "ctrl+o":
			if m.state == StateInput {
				m.verbose = !m.verbose
				return m, nil
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				m.closeManager()
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				m.reset()
				return m, nil
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		cmds = append(cmds, m.waitForEvent())
		if msg.Event.Level == engine.LevelVerbose && !m.verbose {
			break
		}
		if msg.Event.Level == engine.LevelWarning {
			m.warnings++
		}
		m.logs = appendLog(m.logs, LogEntry{Message: msg.Event.Message, Level: msg.Event.Level})

	case InitDoneMsg:
		m.manager = msg.Manager
		if m.quitting {
			m.closeManager()
			return m, tea.Quit
		}
		if msg.Err != nil {
			m.state = StateError
			m.err = msg.Err
			break
		}
		m.albums = msg.Albums
		m.state = StateSyncing
		cmds = append(cmds, m.startSync(), m.tickProgress())

	case SyncDoneMsg:
		if m.quitting {
			m.closeManager()
			return m, tea.Quit
		}
		m.tally = sumTallies(msg.Reports)
		m.albumsDone = len(msg.Reports)
		switch {
		case m.ctx.Err() != nil:
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user after %d album(s)", len(msg.Reports))
		case msg.Err != nil:
			m.state = StateError
			m.err = msg.Err
		default:
			m.state = StateComplete
		}

	case TickMsg:
		if m.manager != nil && m.state == StateSyncing {
			m.processed, m.total, m.albumsDone, m.albumsTotal = m.manager.Progress()
			cmds = append(cmds, m.progress.SetPercent(m.percent()), m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	if m.state == StateInput {
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) setFocus(i int) {
	m.inputs[m.focus].Blur()
	m.focus = i
	m.inputs[m.focus].Focus()
}

func (m *Model) reset() {
	m.closeManager()
	m.state = StateInput
	m.logs = nil
	m.albums = nil
	m.err = nil
	m.processed, m.total = 0, 0
	m.albumsDone, m.albumsTotal = 0, 0
	m.tally = model.Tally{}
	m.warnings = 0
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.setFocus(fieldAccount)
}

func (m Model) running() bool {
	return m.state == StateSyncing || m.state == StateInitializing
}

// cancelSync stops the run. SyncDoneMsg still arrives once in-flight photos
// are verified and the manifest is written.
func (m *Model) cancelSync() {
	m.cancel()
	m.logs = appendLog(m.logs, LogEntry{Message: "Cancelling, finishing in-flight photos...", Level: engine.LevelWarning})
}

func (m *Model) closeManager() {
	if m.manager != nil {
		_ = m.manager.Close()
		m.manager = nil
	}
}

// request builds a sync request from the input fields.
func (m Model) request() (mirror.Request, error) {
	c, err := transfer.ParseCap(m.inputs[fieldCount].Value())
	if err != nil {
		return mirror.Request{}, err
	}
	return mirror.Request{
		Account:   strings.TrimSpace(m.inputs[fieldAccount].Value()),
		Albums:    m.inputs[fieldAlbums].Value(),
		AllAlbums: m.allAlbums,
		Cap:       c,
		DryRun:    m.dryRun,
	}, nil
}

func (m Model) percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.processed) / float64(m.total)
}

func appendLog(logs []LogEntry, entry LogEntry) []LogEntry {
	logs = append(logs, entry)
	if len(logs) > maxLogs {
		logs = logs[len(logs)-maxLogs:]
	}
	return logs
}

func sumTallies(reports []*engine.Report) model.Tally {
	var t model.Tally
	for _, r := range reports {
		if r == nil {
			continue
		}
		t.Fetched += r.Tally.Fetched
		t.Skipped += r.Tally.Skipped
		t.Attempted += r.Tally.Attempted
		t.AlreadyPresent += r.Tally.AlreadyPresent
		t.Transferred += r.Tally.Transferred
		t.Failed += r.Tally.Failed
		t.NotAttempted += r.Tally.NotAttempted
		t.Verified += r.Tally.Verified
		t.VerifyAbsent += r.Tally.VerifyAbsent
		t.VerifyErrors += r.Tally.VerifyErrors
	}
	return t
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// waitForEvent delivers the next engine progress event as a ProgressMsg.
func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return ProgressMsg{Event: <-events}
	}
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Photo Mirror"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Mirror VK albums into %s", m.destination())))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateInitializing:
		b.WriteString(m.viewInitializing())
	case StateSyncing:
		b.WriteString(m.viewSyncing())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.helpText()))

	return b.String()
}

func (m Model) destination() string {
	d := m.settings.Destination
	switch d.Backend {
	case config.BackendS3:
		return fmt.Sprintf("s3://%s/%s", d.S3.Bucket, d.Root)
	default:
		return "disk:/" + d.Root
	}
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("What should be mirrored?"))
	b.WriteString("\n\n")
	for _, in := range m.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s Every album of the account (ctrl+a)\n", checkbox(m.allAlbums)))
	b.WriteString(fmt.Sprintf("  %s Dry run, only show the plan (ctrl+n)\n", checkbox(m.dryRun)))
	b.WriteString(fmt.Sprintf("  %s Verbose output (ctrl+o)\n", checkbox(m.verbose)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Manifests: %s", m.settings.Manifest.Dir)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewInitializing() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render("Resolving account and albums..."))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewSyncing() string {
	var b strings.Builder

	if len(m.albums) > 0 {
		b.WriteString(successStyle.Render(fmt.Sprintf("Syncing %d album(s):", len(m.albums))))
		b.WriteString("\n")
		for i, album := range m.albums {
			mark := " "
			if i < m.albumsDone {
				mark = "x"
			}
			b.WriteString(albumStyle.Render(fmt.Sprintf("  [%s] %s", mark, album)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(m.progress.ViewAs(m.percent()))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Steps: %d/%d | Albums: %d/%d",
		m.processed, m.total, m.albumsDone, m.albumsTotal,
	)))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	t := m.tally
	title := "Sync Complete!"
	if m.dryRun {
		title = "Dry Run Complete!"
	}

	return boxStyle.Render(fmt.Sprintf(
		"%s\n\n"+
			"Albums: %d\n"+
			"Transferred: %d\n"+
			"Already present: %d\n"+
			"Failed: %d\n"+
			"Verified: %d of %d\n"+
			"Not attempted: %d\n"+
			"Skipped: %d\n"+
			"Warnings: %d",
		title,
		m.albumsDone,
		t.Transferred,
		t.AlreadyPresent,
		t.Failed,
		t.Verified, t.Attempted,
		t.NotAttempted,
		t.Skipped,
		m.warnings,
	))
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
		b.WriteString("\n\n")
	}
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "-"
		switch log.Level {
		case engine.LevelError:
			style = errorStyle
			prefix = "x"
		case engine.LevelWarning:
			style = warningStyle
			prefix = "!"
		case engine.LevelSuccess:
			style = successStyle
			prefix = "+"
		case engine.LevelInfo:
			style = infoStyle
			prefix = ">"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) helpText() string {
	switch m.state {
	case StateInput:
		return "enter: start | tab: next field | ctrl+a: all albums | ctrl+n: dry run | ctrl+o: verbose | esc: quit"
	case StateInitializing, StateSyncing:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: new sync | q: quit"
	}
	return ""
}

// initialize builds the manager and queues the requested albums.
func (m Model) initialize(req mirror.Request) tea.Cmd {
	ctx, events, settings, log := m.ctx, m.events, m.settings, m.log
	return func() tea.Msg {
		manager, err := mirror.NewManager(settings, log, func(event engine.ProgressEvent) {
			select {
			case events <- event:
			default:
				// Drop when the screen falls behind.
			}
		})
		if err != nil {
			return InitDoneMsg{Err: err}
		}

		if err := manager.Initialize(ctx, req); err != nil {
			return InitDoneMsg{Manager: manager, Err: err}
		}

		return InitDoneMsg{
			Albums:  manager.AlbumNames(),
			Manager: manager,
		}
	}
}

// startSync runs the queued albums in the background.
func (m Model) startSync() tea.Cmd {
	ctx, manager := m.ctx, m.manager
	return func() tea.Msg {
		if manager == nil {
			return SyncDoneMsg{Err: fmt.Errorf("no manager")}
		}
		reports, err := manager.Start(ctx)
		return SyncDoneMsg{Reports: reports, Err: err}
	}
}

// Run starts the TUI application.
func Run(settings *config.Settings, log logrus.FieldLogger) error {
	p := tea.NewProgram(NewModel(settings, log), tea.WithAltScreen())
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		fm.closeManager()
	}
	return err
}

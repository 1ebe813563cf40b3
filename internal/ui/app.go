package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/synctui/synctui/internal/engine"
	"github.com/synctui/synctui/internal/prefs"
)

// View is the current active view.
type View int

const (
	ViewFolders View = iota
	ViewDevices
	ViewPending
	ViewID
)

// String returns the display title of a view.
func (v View) String() string {
	switch v {
	case ViewDevices:
		return "Devices"
	case ViewPending:
		return "Pending"
	case ViewID:
		return "Device ID"
	default:
		return "Folders"
	}
}

// prefName returns the preference-file spelling of a view.
func (v View) prefName() string {
	switch v {
	case ViewDevices:
		return "devices"
	case ViewPending:
		return "pending"
	case ViewID:
		return "id"
	default:
		return "folders"
	}
}

// viewFromName maps a preference string to a view.
func viewFromName(name string) View {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "devices":
		return ViewDevices
	case "pending":
		return ViewPending
	case "id":
		return ViewID
	default:
		return ViewFolders
	}
}

// Options configures the UI.
type Options struct {
	Context   context.Context
	Engine    *engine.Engine
	ThemeName string
	StartView string
	PrefsPath string
	PollTick  time.Duration
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	eng       *engine.Engine
	prefsPath string
	pollTick  time.Duration

	keys  keyMap
	theme Theme

	currentView View
	width       int
	height      int
	ready       bool

	// proj is the engine's latest immutable projection; everything the UI
	// renders comes from it.
	proj *engine.Projection

	// Per-view cursor positions.
	folderRow  int
	deviceRow  int
	pendingRow int

	popup    Popup
	showHelp bool

	// errorMsg surfaces the last submit rejection until the next submit.
	errorMsg string
}

// New creates the root model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = 250 * time.Millisecond
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	m := Model{
		ctx:         ctx,
		eng:         opts.Engine,
		prefsPath:   prefsPath,
		pollTick:    pollTick,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(opts.ThemeName),
		currentView: viewFromName(opts.StartView),
	}
	if opts.Engine != nil {
		m.proj = opts.Engine.Projection()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
	}
	if m.eng != nil {
		cmds = append(cmds, fetchProjectionCmd(m.eng))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(m.pollTick)}
		if m.eng != nil {
			cmds = append(cmds, fetchProjectionCmd(m.eng))
		}
		return m, tea.Batch(cmds...)

	case projectionMsg:
		m.proj = msg.p
		m.clampCursors()
		return m, nil

	case submitDoneMsg:
		if msg.err != nil {
			m.errorMsg = msg.err.Error()
		} else {
			m.errorMsg = ""
		}
		if m.eng != nil {
			return m, fetchProjectionCmd(m.eng)
		}
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.popup != nil {
		return m.popup.View(m.theme, m.width, m.height)
	}
	return m.renderMain()
}

func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	return b.String()
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewDevices:
		return m.renderDevices()
	case ViewPending:
		return m.renderPending()
	case ViewID:
		return m.renderID()
	default:
		return m.renderFolders()
	}
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help.
		m.showHelp = false
		return m, nil
	}

	if m.popup != nil {
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		popup, cmd, closed := m.popup.Update(msg, m.keys)
		if closed {
			m.popup = nil
		} else {
			m.popup = popup
		}
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		if m.prefsPath != "" {
			_ = prefs.Save(m.prefsPath, prefs.Prefs{
				Theme:     m.theme.Name,
				StartView: m.currentView.prefName(),
			})
		}
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		m.currentView = (m.currentView + 1) % 4
		return m, nil

	case key.Matches(msg, m.keys.ShiftTab):
		m.currentView = (m.currentView + 3) % 4
		return m, nil

	case key.Matches(msg, m.keys.ViewFolders):
		m.currentView = ViewFolders
		return m, nil
	case key.Matches(msg, m.keys.ViewDevices):
		m.currentView = ViewDevices
		return m, nil
	case key.Matches(msg, m.keys.ViewPending):
		m.currentView = ViewPending
		return m, nil
	case key.Matches(msg, m.keys.ViewID):
		m.currentView = ViewID
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.eng != nil {
			m.eng.Refresh()
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.setCursor(0)
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.setCursor(m.cursorMax())
		return m, nil
	}

	switch m.currentView {
	case ViewFolders:
		return m.handleFoldersKey(msg)
	case ViewDevices:
		return m.handleDevicesKey(msg)
	case ViewPending:
		return m.handlePendingKey(msg)
	}
	return m, nil
}

// cursorMax returns the last valid row index for the current view.
func (m Model) cursorMax() int {
	if m.proj == nil {
		return 0
	}
	var n int
	switch m.currentView {
	case ViewFolders:
		n = len(m.proj.Folders)
	case ViewDevices:
		n = len(m.proj.Devices)
	case ViewPending:
		n = len(m.proj.PendingDevices) + len(m.proj.PendingFolders)
	}
	if n == 0 {
		return 0
	}
	return n - 1
}

func (m *Model) moveCursor(delta int) {
	m.setCursor(m.cursor() + delta)
}

func (m Model) cursor() int {
	switch m.currentView {
	case ViewDevices:
		return m.deviceRow
	case ViewPending:
		return m.pendingRow
	default:
		return m.folderRow
	}
}

func (m *Model) setCursor(row int) {
	if row < 0 {
		row = 0
	}
	if max := m.cursorMax(); row > max {
		row = max
	}
	switch m.currentView {
	case ViewDevices:
		m.deviceRow = row
	case ViewPending:
		m.pendingRow = row
	default:
		m.folderRow = row
	}
}

// clampCursors keeps all cursors within bounds after the row sets change.
func (m *Model) clampCursors() {
	if m.proj == nil {
		return
	}
	clamp := func(row, n int) int {
		if n == 0 {
			return 0
		}
		if row >= n {
			return n - 1
		}
		return row
	}
	m.folderRow = clamp(m.folderRow, len(m.proj.Folders))
	m.deviceRow = clamp(m.deviceRow, len(m.proj.Devices))
	m.pendingRow = clamp(m.pendingRow, len(m.proj.PendingDevices)+len(m.proj.PendingFolders))
}

// selectedFolder returns the folder under the cursor, or nil.
func (m Model) selectedFolder() *engine.FolderRow {
	if m.proj == nil || len(m.proj.Folders) == 0 {
		return nil
	}
	row := m.folderRow
	if row >= len(m.proj.Folders) {
		row = len(m.proj.Folders) - 1
	}
	f := m.proj.Folders[row]
	return &f
}

// selectedDevice returns the device under the cursor, or nil.
func (m Model) selectedDevice() *engine.DeviceRow {
	if m.proj == nil || len(m.proj.Devices) == 0 {
		return nil
	}
	row := m.deviceRow
	if row >= len(m.proj.Devices) {
		row = len(m.proj.Devices) - 1
	}
	d := m.proj.Devices[row]
	return &d
}

// Messages

type tickMsg time.Time

type projectionMsg struct{ p *engine.Projection }

type submitDoneMsg struct{ err error }

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchProjectionCmd(eng *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		return projectionMsg{p: eng.Projection()}
	}
}

// submitCmd hands an intent to the engine off the Bubble Tea loop.
func submitCmd(ctx context.Context, eng *engine.Engine, intent engine.Intent) tea.Cmd {
	return func() tea.Msg {
		_, err := eng.Submit(ctx, intent)
		return submitDoneMsg{err: err}
	}
}

// Run starts the Bubble Tea program and blocks until quit.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if opts.Context != nil {
		go func() {
			<-opts.Context.Done()
			p.Quit()
		}()
	}
	_, err := p.Run()
	return err
}

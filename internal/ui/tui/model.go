// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/chat"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/model"
	"github.com/MoriitoDev/Ollector/internal/playback"
	"github.com/MoriitoDev/Ollector/internal/session"
	"github.com/MoriitoDev/Ollector/internal/ui/render"
	"github.com/MoriitoDev/Ollector/internal/ui/styles"
	"github.com/MoriitoDev/Ollector/internal/util"
)

// maxQuestionChars matches the backend's question limit.
const maxQuestionChars = 32 * 1024

// =============================================================================
// MESSAGES
// =============================================================================

// sessionsMsg carries a fetched session list.
type sessionsMsg struct {
	sessions []model.Session
	err      error
}

// openedMsg reports the outcome of opening a session.
type openedMsg struct {
	id  string
	err error
}

// speakMsg reports the outcome of a read-aloud toggle.
type speakMsg struct {
	index int
	err   error
}

// =============================================================================
// MODEL
// =============================================================================

// Options wires the TUI to the chat core.
type Options struct {
	Registry    *session.Registry
	Coordinator *chat.Coordinator
	// Arbiter is nil when read-aloud is disabled.
	Arbiter *playback.Arbiter
	// Bridge must be the chat.Input given to Coordinator.
	Bridge    *Bridge
	Theme     *styles.Theme
	Markdown  *render.Markdown
	ShowStats bool
	Logger    *log.Logger
}

type mode int

const (
	modeChat mode = iota
	modeSessions
	modeAttach
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusSuccess
	statusWarning
	statusError
)

// renderedTurn caches the markdown of a finalized turn.
type renderedTurn struct {
	content string
	out     string
}

// Model is the Bubble Tea model of the TUI.
type Model struct {
	ctx      context.Context
	registry *session.Registry
	coord    *chat.Coordinator
	arbiter  *playback.Arbiter
	bridge   *Bridge
	theme    *styles.Theme
	md       *render.Markdown
	logger   *log.Logger

	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	mode   mode
	ready  bool
	width  int
	height int

	transcript *model.Transcript
	// selected is the assistant turn targeted by read-aloud, -1 for the latest.
	selected int
	rendered map[int]renderedTurn

	sessions []model.Session
	cursor   int
	loading  bool

	// draft keeps the chat input while the attach prompt is open.
	draft string

	status     string
	statusKind statusKind
	spinning   bool
	showStats  bool
}

// New creates the model and registers the bridge callbacks on the registry
// and the arbiter.
func New(ctx context.Context, opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.Plain()
	}
	if opts.Markdown == nil {
		opts.Markdown = render.NewMarkdown(render.StyleFor(opts.Theme), 0, false)
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask your teacher..."
	ti.CharLimit = maxQuestionChars
	ti.PromptStyle = opts.Theme.Prompt
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = opts.Theme.Pending

	m := Model{
		ctx:       ctx,
		registry:  opts.Registry,
		coord:     opts.Coordinator,
		arbiter:   opts.Arbiter,
		bridge:    opts.Bridge,
		theme:     opts.Theme,
		md:        opts.Markdown,
		logger:    logging.OrDefault(opts.Logger, "tui"),
		keys:      DefaultKeyMap(),
		help:      help.New(),
		viewport:  vp,
		input:     ti,
		spinner:   sp,
		selected:  -1,
		rendered:  make(map[int]renderedTurn),
		showStats: opts.ShowStats,
	}

	m.registry.OnChange(m.bridge.RegistryChanged)
	if m.arbiter != nil {
		m.arbiter.OnStateChange(func(playback.State) { m.bridge.PlaybackChanged() })
	}
	m.transcript = m.registry.View()
	m.bridge.Watch(m.transcript)
	m.sessions = m.registry.Sessions()
	return m
}

// Run starts the TUI and blocks until the user quits or ctx is canceled.
func Run(ctx context.Context, opts Options) error {
	m := New(ctx, opts)
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	opts.Bridge.Attach(p)
	defer opts.Bridge.Close()

	_, err := p.Run()
	if opts.Arbiter != nil {
		opts.Arbiter.Stop()
	}
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init loads the session list in the background.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadSessions())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case refreshMsg:
		m.bridge.ack()
		m.refreshViewport()
		return m, m.startSpinner()

	case inputMsg:
		m.syncInput()
		return m, nil

	case registryMsg:
		m.syncView()
		return m, nil

	case playbackMsg:
		m.refreshViewport()
		return m, nil

	case completeMsg:
		return m.handleComplete(msg.result)

	case sessionsMsg:
		return m.handleSessions(msg)

	case openedMsg:
		return m.handleOpened(msg)

	case speakMsg:
		if msg.err != nil {
			m.setStatus(statusError, "Could not read the answer aloud: "+errorText(msg.err))
		}
		m.refreshViewport()
		return m, nil

	case spinner.TickMsg:
		if !m.isSending() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshViewport()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.arbiter != nil {
			m.arbiter.Stop()
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize(m.width, m.height)
		return m, nil
	}

	switch m.mode {
	case modeSessions:
		return m.handlePickerKey(msg)
	case modeAttach:
		return m.handleAttachKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	case key.Matches(msg, m.keys.NewSession):
		m.newSession()
		return m, nil
	case key.Matches(msg, m.keys.Sessions):
		return m.openPicker()
	case key.Matches(msg, m.keys.Attach):
		m.draft = m.input.Value()
		m.input.SetValue("")
		m.input.Placeholder = "Path to a PDF or text file"
		m.input.Focus()
		m.mode = modeAttach
		return m, nil
	case key.Matches(msg, m.keys.Speak):
		return m.speak()
	case key.Matches(msg, m.keys.Stop):
		if m.arbiter != nil {
			m.arbiter.Stop()
		}
		return m, nil
	case key.Matches(msg, m.keys.PrevTurn):
		m.moveSelection(-1)
		return m, nil
	case key.Matches(msg, m.keys.NextTurn):
		m.moveSelection(1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if !m.input.Focused() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Stop):
		m.mode = modeChat
	case key.Matches(msg, m.keys.PickerUp):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.PickerDown):
		if m.cursor < len(m.sessions)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.NewSession):
		m.newSession()
		m.mode = modeChat
	case key.Matches(msg, m.keys.Submit):
		if m.cursor < 0 || m.cursor >= len(m.sessions) {
			return m, nil
		}
		return m, m.openSession(m.sessions[m.cursor].ID)
	}
	return m, nil
}

func (m Model) handleAttachKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Stop):
		m.closeAttach()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		path := m.input.Value()
		m.closeAttach()
		m.attach(path)
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) closeAttach() {
	m.mode = modeChat
	m.input.Placeholder = "Ask your teacher..."
	m.input.SetValue(m.draft)
	m.draft = ""
	m.syncInput()
}

// =============================================================================
// ACTIONS
// =============================================================================

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		return m.runCommand(strings.TrimSpace(text))
	}

	err := m.coord.SubmitAsync(m.ctx, text)
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return m, nil
	case errors.Is(err, chat.ErrBusy):
		m.setStatus(statusWarning, "Still answering the previous question.")
		return m, nil
	case err != nil:
		m.setStatus(statusError, errorText(err))
		return m, nil
	}

	m.clearStatus()
	m.syncInput()
	m.refreshViewport()
	m.viewport.GotoBottom()
	return m, m.startSpinner()
}

func (m *Model) newSession() {
	m.registry.NewDraft()
	m.syncView()
	m.setStatus(statusInfo, "New chat. Your next question starts it.")
}

func (m Model) openPicker() (tea.Model, tea.Cmd) {
	m.mode = modeSessions
	m.loading = true
	m.cursor = m.indexOfCurrent()
	return m, m.loadSessions()
}

func (m Model) loadSessions() tea.Cmd {
	ctx, reg := m.ctx, m.registry
	return func() tea.Msg {
		sessions, err := reg.List(ctx)
		return sessionsMsg{sessions: sessions, err: err}
	}
}

func (m Model) openSession(id string) tea.Cmd {
	ctx, reg := m.ctx, m.registry
	return func() tea.Msg {
		return openedMsg{id: id, err: reg.Open(ctx, id)}
	}
}

func (m *Model) attach(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	att, err := backend.LoadAttachment(util.HomePath(path))
	if err != nil {
		m.setStatus(statusError, "Cannot attach: "+err.Error())
		return
	}
	m.coord.Stage(att)
	m.setStatus(statusSuccess, fmt.Sprintf("Attached %s (%s). It goes with your next question.",
		att.Name, util.FormatBytes(int64(att.Size()))))
}

func (m Model) speak() (tea.Model, tea.Cmd) {
	if m.arbiter == nil {
		m.setStatus(statusWarning, "Read-aloud is disabled.")
		return m, nil
	}
	i, turn, ok := m.selectedTurn()
	if !ok {
		m.setStatus(statusInfo, "There is no answer to read yet.")
		return m, nil
	}
	if m.transcript.InProgress() && i == m.transcript.Len()-1 {
		m.setStatus(statusInfo, "Wait for the answer to finish.")
		return m, nil
	}

	ctx, arb := m.ctx, m.arbiter
	return m, func() tea.Msg {
		return speakMsg{index: i, err: arb.Toggle(ctx, i, turn.Content)}
	}
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleComplete(r chat.Result) (tea.Model, tea.Cmd) {
	m.syncInput()
	if r.Transcript != m.transcript {
		return m, nil
	}
	switch {
	case r.Err != nil:
		m.setStatus(statusError, "The answer failed: "+errorText(r.Err))
	case m.showStats:
		m.setStatus(statusInfo, fmt.Sprintf("Answered in %s, %s",
			r.Duration.Round(time.Millisecond), util.FormatBytes(r.Stats.Bytes)))
	}
	m.refreshViewport()
	return m, nil
}

func (m Model) handleSessions(msg sessionsMsg) (tea.Model, tea.Cmd) {
	m.loading = false
	if msg.err != nil {
		m.setStatus(statusError, "Could not load chats: "+errorText(msg.err))
		return m, nil
	}
	m.sessions = msg.sessions
	if m.mode == modeSessions {
		m.cursor = m.indexOfCurrent()
	}
	return m, nil
}

func (m Model) handleOpened(msg openedMsg) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(msg.err, session.ErrSessionBusy):
		m.setStatus(statusWarning, "That chat is still answering. Try again in a moment.")
		return m, nil
	case errors.Is(msg.err, session.ErrSessionNotFound):
		m.setStatus(statusError, "That chat no longer exists.")
		return m, m.loadSessions()
	case msg.err != nil:
		m.setStatus(statusError, "Could not open the chat: "+errorText(msg.err))
		return m, nil
	}

	m.mode = modeChat
	m.syncView()
	if s, ok := m.registry.Lookup(msg.id); ok {
		m.setStatus(statusInfo, "Opened "+s.DisplayTitle())
	} else {
		m.clearStatus()
	}
	m.viewport.GotoBottom()
	return m, nil
}

// =============================================================================
// SYNC
// =============================================================================

// syncInput applies the input state requested by the coordinator.
func (m *Model) syncInput() {
	enabled, clear := m.bridge.takeInput()
	if clear && m.mode == modeChat {
		m.input.Reset()
	}
	if m.mode != modeChat {
		return
	}
	if enabled {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// syncView follows the registry's viewed transcript.
func (m *Model) syncView() {
	tr := m.registry.View()
	if m.bridge.Watch(tr) {
		m.transcript = tr
		m.selected = -1
		m.rendered = make(map[int]renderedTurn)
		if m.arbiter != nil {
			m.arbiter.Stop()
		}
	}
	if m.mode != modeSessions || !m.loading {
		m.sessions = m.registry.Sessions()
	}
	m.refreshViewport()
}

func (m *Model) startSpinner() tea.Cmd {
	if m.spinning || !m.isSending() {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m Model) isSending() bool {
	return m.transcript.InProgress() || m.coord.State(m.transcript) == chat.StateSending
}

// =============================================================================
// SELECTION
// =============================================================================

func (m Model) assistantTurns() []int {
	var idx []int
	for i, t := range m.transcript.Turns() {
		if t.Role == model.RoleAssistant {
			idx = append(idx, i)
		}
	}
	return idx
}

// selectedTurn resolves the read-aloud target.
func (m Model) selectedTurn() (int, model.Turn, bool) {
	i := m.selected
	if i < 0 {
		idx := m.assistantTurns()
		if len(idx) == 0 {
			return -1, model.Turn{}, false
		}
		i = idx[len(idx)-1]
	}
	t, ok := m.transcript.Turn(i)
	if !ok || t.Role != model.RoleAssistant || t.IsEmpty() {
		return -1, model.Turn{}, false
	}
	return i, t, true
}

func (m *Model) moveSelection(delta int) {
	idx := m.assistantTurns()
	if len(idx) == 0 {
		return
	}
	pos := len(idx) - 1
	for p, i := range idx {
		if i == m.selected {
			pos = p
		}
	}
	pos += delta
	if pos < 0 {
		pos = 0
	}
	if pos >= len(idx) {
		pos = len(idx) - 1
	}
	m.selected = idx[pos]
	m.refreshViewport()
}

func (m Model) indexOfCurrent() int {
	cur := m.registry.Current()
	for i, s := range m.sessions {
		if s.ID == cur {
			return i
		}
	}
	return 0
}

// =============================================================================
// STATUS
// =============================================================================

func (m *Model) setStatus(kind statusKind, text string) {
	m.status = text
	m.statusKind = kind
}

func (m *Model) clearStatus() {
	m.status = ""
	m.statusKind = statusInfo
}

func errorText(err error) string {
	switch {
	case backend.IsUnavailable(err):
		return "the server is not reachable"
	case backend.IsTimeout(err):
		return "the server took too long"
	case errors.Is(err, playback.ErrNoPlayer):
		return "no audio player found"
	default:
		return err.Error()
	}
}

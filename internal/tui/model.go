package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"taxquery-backend/internal/conversation"
	"taxquery-backend/internal/dispatch"
)

const (
	eventBuffer               = 256
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	// title, blank line, input line and help line
	chromeHeight = 5
)

// Config wires runtime options into the TUI program.
type Config struct {
	Engine *dispatch.Engine
	// Endpoint is shown in the header only.
	Endpoint string
}

type model struct {
	config   Config
	engine   *dispatch.Engine
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	events      chan conversation.Event
	unsubscribe func()

	pending bool
	width   int
	height  int
	ready   bool
}

// stateEventMsg carries a change of the conversation state into the update
// loop.
type stateEventMsg struct {
	event conversation.Event
}

type turnDoneMsg struct {
	turn dispatch.Turn
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	return newModel(config)
}

func newModel(config Config) *model {
	input := textinput.New()
	input.Placeholder = "Ask about tax demand, collection, efficiency or gaps…"
	input.Prompt = "› "
	input.CharLimit = 500
	input.Width = 70
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.MouseWheelEnabled = true

	m := &model{
		config:   config,
		engine:   config.Engine,
		input:    input,
		viewport: vp,
		spinner:  spin,
		events:   make(chan conversation.Event, eventBuffer),
	}
	m.unsubscribe = m.engine.State().Subscribe(func(ev conversation.Event) {
		m.events <- ev
	})
	m.refreshViewport()
	return m
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateEventMsg:
		if msg.event.Kind == conversation.EventEntryAppended {
			m.refreshViewport()
		}
		return m, waitForEvent(m.events)

	case turnDoneMsg:
		m.pending = false
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.unsubscribe()
		return m, tea.Quit
	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	}

	if m.busy() {
		return m, nil
	}
	if key.Type == tea.KeyEnter {
		return m, m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// submit hands the composed text to the engine. Blank input is cleared
// without starting a turn.
func (m *model) submit() tea.Cmd {
	text := m.input.Value()
	m.input.Reset()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	m.pending = true
	return runTurnCmd(m.engine, text)
}

func (m *model) busy() bool {
	return m.pending || m.engine.State().Busy()
}

func (m *model) resize(width, height int) {
	m.width = width
	m.height = height
	m.ready = true

	vpWidth := width - viewportHorizontalPadding
	if vpWidth < minViewportWidth {
		vpWidth = minViewportWidth
	}
	vpHeight := height - chromeHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.input.Width = vpWidth - len(m.input.Prompt)
	m.refreshViewport()
}

func (m *model) refreshViewport() {
	m.viewport.SetContent(renderHistory(m.engine.State().History(), m.viewport.Width))
	m.viewport.GotoBottom()
}

func waitForEvent(ch <-chan conversation.Event) tea.Cmd {
	return func() tea.Msg {
		return stateEventMsg{event: <-ch}
	}
}

func runTurnCmd(engine *dispatch.Engine, text string) tea.Cmd {
	return func() tea.Msg {
		return turnDoneMsg{turn: engine.HandleUserMessage(context.Background(), text)}
	}
}

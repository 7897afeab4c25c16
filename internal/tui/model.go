// Package tui is the terminal front end of the chat client.
package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/suPer8Hu/finchat/internal/chatclient"
)

// chrome is the number of rows outside the transcript viewport.
const chrome = 4

type (
	changeMsg    chatclient.ChangeKind
	sentMsg      chatclient.Message
	refreshedMsg chatclient.Notification
	loadedMsg    struct{ err error }
)

type Model struct {
	ctx    context.Context
	client *chatclient.Client
	feed   Feed

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	styles   styles

	state  chatclient.State
	width  int
	height int
}

// New builds the UI for client. feed must be the observer installed on
// client, or nil when the caller does not observe it.
func New(ctx context.Context, client *chatclient.Client, feed Feed) Model {
	st := defaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Ask about your finances..."
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = st.Spinner

	m := Model{
		ctx:      ctx,
		client:   client,
		feed:     feed,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		styles:   st,
		width:    80,
		height:   20 + chrome,
	}
	m.sync(true)
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForChange(), m.loadHistory())
}

func (m Model) waitForChange() tea.Cmd {
	if m.feed == nil {
		return nil
	}
	return func() tea.Msg {
		k, ok := <-m.feed
		if !ok {
			return nil
		}
		return changeMsg(k)
	}
}

func (m Model) loadHistory() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.client.LoadHistory(m.ctx)}
	}
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		n, err := m.client.RefreshIndex(m.ctx)
		if err != nil {
			// already refreshing; that request will report
			return nil
		}
		return refreshedMsg(n)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 1)
		m.height = max(msg.Height, chrome+1)
		m.viewport.Width = m.width
		m.viewport.Height = m.height - chrome
		m.input.Width = max(m.width-len(m.input.Prompt)-1, 1)
		m.sync(true)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+r":
			return m, m.refresh()
		case "ctrl+l":
			m.client.Reset()
			m.sync(true)
			return m, nil
		case "enter":
			return m.submit()
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case changeMsg:
		k := chatclient.ChangeKind(msg)
		m.sync(k == chatclient.ChangeScroll || k == chatclient.ChangeMessages)
		return m, m.waitForChange()

	case sentMsg, refreshedMsg, loadedMsg:
		m.sync(true)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit appends the typed message right away and hands the request to a
// command so the loop keeps drawing while the reply is pending.
func (m Model) submit() (tea.Model, tea.Cmd) {
	p, err := m.client.StartSend(m.input.Value())
	if errors.Is(err, chatclient.ErrEmptyMessage) || errors.Is(err, chatclient.ErrSendPending) {
		return m, nil
	}
	m.input.Reset()
	m.sync(true)
	return m, func() tea.Msg {
		return sentMsg(p.Wait(m.ctx))
	}
}

// sync copies the client state and re-renders the transcript.
func (m *Model) sync(scroll bool) {
	m.state = m.client.Snapshot()
	m.viewport.SetContent(m.renderTranscript())
	if scroll {
		m.viewport.GotoBottom()
	}
}

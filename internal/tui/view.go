package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/suPer8Hu/finchat/internal/chatclient"
)

const (
	emptyTranscript = "Start a conversation..."
	thinking        = "AI is thinking..."
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	b.WriteString(m.renderStatus())
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	b.WriteByte('\n')
	b.WriteString(m.styles.Help.Render("enter send • ctrl+r refresh index • ctrl+l new chat • esc quit"))
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.styles.Header.Render("Financial Assistant")
	id := m.state.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return title + m.styles.Muted.Render("  session "+id)
}

func (m Model) renderStatus() string {
	switch {
	case m.state.Refreshing:
		return m.spinner.View() + " Refreshing index..."
	case m.state.Notification != nil:
		n := m.state.Notification
		if n.Kind == chatclient.NotifyError {
			return m.styles.Error.Render(n.Message)
		}
		return m.styles.Success.Render(n.Message)
	}
	return ""
}

func (m Model) renderTranscript() string {
	if len(m.state.Messages) == 0 && !m.state.Sending {
		return m.styles.Muted.Render(emptyTranscript)
	}

	body := m.styles.Body.Width(max(m.viewport.Width-2, 1))
	var parts []string
	for _, msg := range m.state.Messages {
		label := m.styles.Assistant.Render("Assistant")
		if msg.IsUser {
			label = m.styles.User.Render("You")
		}
		parts = append(parts, lipgloss.JoinVertical(lipgloss.Left, label, body.Render(msg.Text)))
	}
	if m.state.Sending {
		parts = append(parts, m.spinner.View()+" "+m.styles.Muted.Render(thinking))
	}
	return strings.Join(parts, "\n\n")
}

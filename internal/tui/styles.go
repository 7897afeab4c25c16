package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent      = lipgloss.Color("#8BC34A")
	destructive = lipgloss.Color("#e53935")
	muted       = lipgloss.Color("240")
	info        = lipgloss.Color("#2196F3")
)

type styles struct {
	Header    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Body      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Spinner   lipgloss.Style
	Help      lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(accent),
		User:      lipgloss.NewStyle().Bold(true).Foreground(info),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(accent),
		Body:      lipgloss.NewStyle().PaddingLeft(2),
		Muted:     lipgloss.NewStyle().Foreground(muted).Italic(true),
		Success:   lipgloss.NewStyle().Foreground(accent),
		Error:     lipgloss.NewStyle().Foreground(destructive),
		Spinner:   lipgloss.NewStyle().Foreground(accent),
		Help:      lipgloss.NewStyle().Foreground(muted),
	}
}

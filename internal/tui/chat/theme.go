// Package chat implements the interactive parishad chat TUI. The terminal
// stays responsive while a worker runs: submitted tasks are polled on a
// fixed cadence from the update loop, never awaited.
package chat

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the chat TUI.
type Theme struct {
	// Transcript roles
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Pending   lipgloss.Style

	// UI elements
	Border  lipgloss.Style
	Title   lipgloss.Style
	Dim     lipgloss.Style
	ErrText lipgloss.Style
	Spinner lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),
		System:    lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Pending:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		ErrText: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Spinner: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
	}
}

package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#98C379")).
			Padding(0, 1)
	syncStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7F848E")).
			Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF"))
	checkedStyle = lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("#5C6370"))
	placeholderStyle = lipgloss.NewStyle().
				Italic(true).
				Foreground(lipgloss.Color("#7F848E"))
	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5C07B")).
			MarginTop(1)
	toBuyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#C678DD"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E06C75"))
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#56B6C2"))
)

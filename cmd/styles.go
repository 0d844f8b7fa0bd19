package cmd

import "github.com/charmbracelet/lipgloss"

// theme groups the styles used by simulate output.
type theme struct {
	title  lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	ok     lipgloss.Style
	failed lipgloss.Style
	box    lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		title: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("28")),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		ok: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("114")).
			Padding(0, 1),
		failed: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("109")).
			Padding(0, 1),
	}
}

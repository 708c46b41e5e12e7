package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.Color("39")
	mutedColor  = lipgloss.Color("240")
	alertColor  = lipgloss.Color("196")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	chartTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	selectedRowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(accentColor)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true).
			Foreground(accentColor)

	tabStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle = lipgloss.NewStyle().Foreground(alertColor)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	// Bar colours per metric kind.
	kindColors = map[string]lipgloss.Color{
		"count":    lipgloss.Color("39"),
		"amount":   lipgloss.Color("42"),
		"status":   lipgloss.Color("208"),
		"interval": lipgloss.Color("201"),
	}
)

func kindStyle(kind string) lipgloss.Style {
	c, ok := kindColors[kind]
	if !ok {
		c = mutedColor
	}
	return lipgloss.NewStyle().Foreground(c).Background(c)
}

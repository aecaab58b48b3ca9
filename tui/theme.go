package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	Header    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Code      lipgloss.Style
	Output    lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Alert     lipgloss.Style
	Danger    lipgloss.Style
	Input     lipgloss.Style
	Prompt    lipgloss.Style
}

func defaultTheme() theme {
	accent := lipgloss.Color("#00FFFF")
	secondary := lipgloss.Color("#7D7D7D")
	success := lipgloss.Color("#00FF00")
	alert := lipgloss.Color("#FFBF00")
	danger := lipgloss.Color("#FF0055")

	return theme{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		User: lipgloss.NewStyle().
			Bold(true),
		Assistant: lipgloss.NewStyle(),
		Code: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		Output: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(secondary).
			Foreground(secondary).
			Padding(0, 1),
		Muted: lipgloss.NewStyle().
			Foreground(secondary),
		Success: lipgloss.NewStyle().
			Foreground(success),
		Alert: lipgloss.NewStyle().
			Foreground(alert),
		Danger: lipgloss.NewStyle().
			Foreground(danger),
		Input: lipgloss.NewStyle().
			Foreground(accent),
		Prompt: lipgloss.NewStyle().
			Bold(true).
			Foreground(alert),
	}
}

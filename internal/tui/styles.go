package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds every style the client renders with.
type Theme struct {
	Title      lipgloss.Style
	Subtle     lipgloss.Style
	Bubble     lipgloss.Style
	BubbleLow  lipgloss.Style
	Particles  [4]lipgloss.Style
	Threshold  lipgloss.Style
	HUDLabel   lipgloss.Style
	HUDValue   lipgloss.Style
	Hearts     lipgloss.Style
	Input      lipgloss.Style
	Notice     lipgloss.Style
	Error      lipgloss.Style
	Overlay    lipgloss.Style
	Selected   lipgloss.Style
	Unselected lipgloss.Style
}

// DefaultTheme returns the default color theme.
func DefaultTheme() Theme {
	return Theme{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
		Subtle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Bubble:    lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true),
		BubbleLow: lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		Particles: [4]lipgloss.Style{
			lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
			lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
			lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		},
		Threshold:  lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		HUDLabel:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		HUDValue:   lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true),
		Hearts:     lipgloss.NewStyle().Foreground(lipgloss.Color("197")),
		Input:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1),
		Notice:     lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220")).Padding(0, 1),
		Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")).Padding(0, 1),
		Overlay:    lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("213")).Padding(1, 3),
		Selected:   lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("213")).Bold(true).Padding(0, 1),
		Unselected: lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Padding(0, 1),
	}
}

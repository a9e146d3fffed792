package tui

import "github.com/charmbracelet/lipgloss"

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	panel       lipgloss.Style
	panelFocus  lipgloss.Style
	panelTitle  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	inputPanel  lipgloss.Style
	helpText    lipgloss.Style
	banner      lipgloss.Style
	rowCursor   lipgloss.Style
	rowActive   lipgloss.Style
	label       map[string]lipgloss.Style
	chatRole    map[string]lipgloss.Style
	healthOK    lipgloss.Style
	healthBad   lipgloss.Style
	loginFrame  lipgloss.Style
	loginTitle  lipgloss.Style
}

func newTheme() uiTheme {
	teal := lipgloss.Color("#2dd4bf")
	blue := lipgloss.Color("#60a5fa")
	amber := lipgloss.Color("#fbbf24")
	red := lipgloss.Color("#f87171")
	bg := lipgloss.Color("#0f172a")
	panelBg := lipgloss.Color("#111c33")
	text := lipgloss.Color("#e2e8f0")
	muted := lipgloss.Color("#94a3b8")

	return uiTheme{
		root: lipgloss.NewStyle().
			Background(bg).
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		tabActive: lipgloss.NewStyle().
			Background(teal).
			Foreground(lipgloss.Color("#042f2e")).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Background(lipgloss.Color("#1e293b")).
			Foreground(muted).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#334155")).
			Padding(0, 1),
		panelFocus: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(teal).
			Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(red).Bold(true),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1),
		helpText: lipgloss.NewStyle().Foreground(muted),
		banner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1c1917")).
			Background(amber).
			Bold(true).
			Padding(0, 1),
		rowCursor: lipgloss.NewStyle().Foreground(teal).Bold(true),
		rowActive: lipgloss.NewStyle().Foreground(text).Bold(true),
		label: map[string]lipgloss.Style{
			"Active":  lipgloss.NewStyle().Foreground(teal),
			"Pending": lipgloss.NewStyle().Foreground(amber).Bold(true),
			"Live":    lipgloss.NewStyle().Foreground(blue).Bold(true),
			"Closed":  lipgloss.NewStyle().Foreground(muted),
		},
		chatRole: map[string]lipgloss.Style{
			"user":      lipgloss.NewStyle().Foreground(teal).Bold(true),
			"assistant": lipgloss.NewStyle().Foreground(blue).Bold(true),
			"agent":     lipgloss.NewStyle().Foreground(amber).Bold(true),
			"pending":   lipgloss.NewStyle().Foreground(muted).Italic(true),
		},
		healthOK:  lipgloss.NewStyle().Foreground(teal),
		healthBad: lipgloss.NewStyle().Foreground(red).Bold(true),
		loginFrame: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(teal).
			Padding(1, 2),
		loginTitle: lipgloss.NewStyle().
			Foreground(teal).
			Bold(true),
	}
}

func (t uiTheme) labelStyle(label string) lipgloss.Style {
	if style, ok := t.label[label]; ok {
		return style
	}
	return t.helpText
}

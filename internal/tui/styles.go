package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.Color("39")
	muted  = lipgloss.Color("244")
	okFg   = lipgloss.Color("42")
	warnFg = lipgloss.Color("178")
	failFg = lipgloss.Color("160")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(accent).
			Padding(0, 1).
			Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(muted).
			Padding(0, 1).
			MarginBottom(1)

	panelTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)

	labelStyle = lipgloss.NewStyle().Foreground(muted).Width(12)
	valueStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
	helpStyle  = lipgloss.NewStyle().Foreground(muted).MarginTop(1)
	errorStyle = lipgloss.NewStyle().Foreground(failFg).Bold(true)

	loadingStyle = lipgloss.NewStyle().Foreground(accent).Padding(1, 2)
)

// eventStyle colours an event message by how serious its state is.
func eventStyle(state int) lipgloss.Style {
	if state == 0 {
		return lipgloss.NewStyle().Foreground(okFg)
	}
	return lipgloss.NewStyle().Foreground(warnFg)
}

func daemonState(running bool) string {
	if running {
		return lipgloss.NewStyle().Foreground(okFg).Render("● running")
	}
	return lipgloss.NewStyle().Foreground(failFg).Render("○ stopped")
}

// healthBar draws the share of services that are ok. Any failing service
// turns the whole bar red.
func healthBar(ok, total, width int) string {
	if total <= 0 {
		return mutedStyle.Render(strings.Repeat("·", width))
	}
	filled := ok * width / total
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	fg := okFg
	if ok < total {
		fg = failFg
	}
	return lipgloss.NewStyle().Foreground(fg).Render(strings.Repeat("■", filled)) +
		mutedStyle.Render(strings.Repeat("□", width-filled))
}

package tui

import (
	"fmt"
	"strings"
	"time"
)

// DashboardData holds data for the dashboard view.
type DashboardData struct {
	LoadedAt      time.Time
	DaemonRunning bool
	MuninVersion  string
	EventCount    int
	Instances     []InstanceInfo
	Events        []EventInfo
}

// InstanceInfo is one monit instance for display.
type InstanceInfo struct {
	Host     string
	Version  string
	Uptime   string
	Services int
	Failing  int
}

// EventInfo is one recent event for display.
type EventInfo struct {
	Time    string
	Type    string
	Service string
	Message string
	State   int
}

// Dashboard is the main dashboard view.
type Dashboard struct {
	data   *DashboardData
	width  int
	height int
}

// NewDashboard creates a new dashboard.
func NewDashboard(data *DashboardData, width, height int) *Dashboard {
	return &Dashboard{
		data:   data,
		width:  width,
		height: height,
	}
}

// SetSize updates the dashboard size.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Width(d.width).Render("Monit Dashboard"))
	sb.WriteString("\n\n")
	sb.WriteString(d.renderStatsSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderInstancesSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderEventsSection())
	sb.WriteString("\n")

	help := fmt.Sprintf("Updated %s • 'r' to refresh • 'q' to quit", d.data.LoadedAt.Format("15:04:05"))
	sb.WriteString(helpStyle.Render(help))

	return sb.String()
}

func (d *Dashboard) sectionWidth() int {
	if w := d.width - 4; w > 40 {
		return w
	}
	return 40
}

func (d *Dashboard) renderStatsSection() string {
	munin := d.data.MuninVersion
	if munin == "" {
		munin = "-"
	}

	content := fmt.Sprintf(
		"%s %s\n%s %s\n%s %s\n%s %s",
		labelStyle.Render("Daemon:"),
		daemonState(d.data.DaemonRunning),
		labelStyle.Render("Instances:"),
		valueStyle.Render(fmt.Sprintf("%d", len(d.data.Instances))),
		labelStyle.Render("Events:"),
		valueStyle.Render(fmt.Sprintf("%d", d.data.EventCount)),
		labelStyle.Render("Munin:"),
		valueStyle.Render(munin),
	)

	return panelStyle.Width(d.sectionWidth()).Render(
		panelTitleStyle.Render("Statistics") + "\n" + content)
}

func (d *Dashboard) renderInstancesSection() string {
	title := panelTitleStyle.Render("Monit Instances")
	if len(d.data.Instances) == 0 {
		return panelStyle.Width(d.sectionWidth()).Render(
			title + "\n" + mutedStyle.Render("No monit instance has reported yet"))
	}

	var rows []string
	rows = append(rows, fmt.Sprintf("%-24s %-8s %-20s %-12s %s", "Host", "Version", "Uptime", "Health", "Services"))
	rows = append(rows, strings.Repeat("─", 80))
	for _, inst := range d.data.Instances {
		rows = append(rows, fmt.Sprintf("%-24s %-8s %-20s %s %d/%d ok",
			truncate(inst.Host, 24), truncate(inst.Version, 8), inst.Uptime,
			healthBar(inst.Services-inst.Failing, inst.Services, 12),
			inst.Services-inst.Failing, inst.Services))
	}

	return panelStyle.Width(d.sectionWidth()).Render(title + "\n" + strings.Join(rows, "\n"))
}

func (d *Dashboard) renderEventsSection() string {
	title := panelTitleStyle.Render("Recent Events")
	if len(d.data.Events) == 0 {
		return panelStyle.Width(d.sectionWidth()).Render(
			title + "\n" + mutedStyle.Render("No events recorded"))
	}

	var rows []string
	for _, e := range d.data.Events {
		rows = append(rows, fmt.Sprintf("%s %-10s %-20s %s",
			mutedStyle.Render(e.Time), e.Type, truncate(e.Service, 20), eventStyle(e.State).Render(e.Message)))
	}
	return panelStyle.Width(d.sectionWidth()).Render(title + "\n" + strings.Join(rows, "\n"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

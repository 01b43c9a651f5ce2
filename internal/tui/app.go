// Package tui provides a terminal dashboard of monit instances and events.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/monitoring/internal/daemon"
	"github.com/user/monitoring/internal/storage"
	"github.com/user/monitoring/internal/util"
)

const (
	refreshInterval = 30 * time.Second
	recentEvents    = 10
)

// App is the main TUI application.
type App struct {
	db     *storage.DB
	config *util.Config
}

// NewApp creates a new TUI application.
func NewApp(db *storage.DB, cfg *util.Config) *App {
	return &App{
		db:     db,
		config: cfg,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(newModel(a.db, a.config), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// model is the main bubbletea model.
type model struct {
	db        *storage.DB
	config    *util.Config
	dashboard *Dashboard
	spinner   spinner.Model
	ready     bool
	width     int
	height    int
	err       error
}

func newModel(db *storage.DB, cfg *util.Config) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accent)

	return model{
		db:      db,
		config:  cfg,
		spinner: s,
	}
}

// Init initializes the model.
func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.load(),
		scheduleRefresh(),
	)
}

// Update handles messages.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.load()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.dashboard != nil {
			m.dashboard.SetSize(msg.Width, msg.Height)
		}

	case refreshMsg:
		return m, tea.Batch(m.load(), scheduleRefresh())

	case dataMsg:
		m.ready = true
		m.err = nil
		m.dashboard = NewDashboard(msg.Data, m.width, m.height)

	case errMsg:
		m.err = msg.err

	case spinner.TickMsg:
		if m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI.
func (m model) View() string {
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}

	if !m.ready {
		return loadingStyle.Render(m.spinner.View() + " Loading...")
	}

	return m.dashboard.View()
}

type dataMsg struct {
	Data *DashboardData
}

type errMsg struct {
	err error
}

type refreshMsg struct{}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m model) load() tea.Cmd {
	db, dataDir := m.db, m.config.DataDir
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data, err := fetchDashboardData(ctx, db, dataDir)
		if err != nil {
			return errMsg{err}
		}
		return dataMsg{Data: data}
	}
}

func fetchDashboardData(ctx context.Context, db *storage.DB, dataDir string) (*DashboardData, error) {
	data := &DashboardData{LoadedAt: time.Now()}

	data.DaemonRunning, _ = daemon.CheckRunning(dataDir)
	if status, err := daemon.ReadStatusFile(dataDir); err == nil {
		data.MuninVersion = status.MuninVersion
	}

	instances, err := storage.NewMonitStorage(db).List(ctx)
	if err != nil {
		return nil, err
	}

	services := storage.NewServiceStorage(db)
	for _, inst := range instances {
		rows, err := services.Latest(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		info := InstanceInfo{
			Host:     inst.LocalHostname,
			Version:  inst.Version,
			Uptime:   inst.UptimeFormatted,
			Services: len(rows),
		}
		for _, r := range rows {
			if r.Status != 0 {
				info.Failing++
			}
		}
		data.Instances = append(data.Instances, info)
	}

	events := storage.NewEventStorage(db)
	if data.EventCount, err = events.Count(ctx); err != nil {
		return nil, err
	}
	recent, err := events.Recent(ctx, recentEvents)
	if err != nil {
		return nil, err
	}
	for _, e := range recent {
		info := EventInfo{
			Time:    e.CollectedAt().Local().Format("01-02 15:04:05"),
			Type:    e.Type.String(),
			Service: "unknown",
			Message: e.Message,
			State:   e.State,
		}
		if svc, err := services.Get(ctx, e.Type, e.ServiceID); err == nil && svc != nil {
			info.Service = svc.Name
		}
		data.Events = append(data.Events, info)
	}

	return data, nil
}

package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/monitoring/internal/collector"
	"github.com/user/monitoring/internal/storage"
	"github.com/user/monitoring/internal/util"
)

func seededDB(t *testing.T) (*storage.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(context.Background(), filepath.Join(dir, "monit.db"), storage.Options{Logger: util.NopLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	payload, err := os.ReadFile("../collector/testdata/report.json")
	require.NoError(t, err)
	c := collector.New(db, collector.NewArchive(filepath.Join(dir, "log")), util.NopLogger())
	_, err = c.Ingest(context.Background(), payload, "application/json")
	require.NoError(t, err)
	return db, dir
}

func TestFetchDashboardData(t *testing.T) {
	db, dir := seededDB(t)

	data, err := fetchDashboardData(context.Background(), db, dir)
	require.NoError(t, err)
	assert.False(t, data.DaemonRunning)
	assert.Equal(t, 1, data.EventCount)
	require.Len(t, data.Instances, 1)
	assert.Equal(t, "web1.example.com", data.Instances[0].Host)
	assert.Equal(t, 6, data.Instances[0].Services)
	require.Len(t, data.Events, 1)
	assert.Equal(t, "sshd", data.Events[0].Service)
	assert.Equal(t, "process", data.Events[0].Type)
}

func TestDashboardView(t *testing.T) {
	db, dir := seededDB(t)
	data, err := fetchDashboardData(context.Background(), db, dir)
	require.NoError(t, err)

	view := NewDashboard(data, 120, 40).View()
	assert.Contains(t, view, "web1.example.com")
	assert.Contains(t, view, "6/6 ok")
	assert.Contains(t, view, "process is not running")

	empty := NewDashboard(&DashboardData{}, 80, 24).View()
	assert.Contains(t, empty, "No monit instance has reported yet")
	assert.Contains(t, empty, "No events recorded")
}

func TestModelUpdate(t *testing.T) {
	db, dir := seededDB(t)
	cfg := util.DefaultConfigFor(dir)
	m := newModel(db, cfg)

	assert.Contains(t, m.View(), "Loading")

	msg := m.load()()
	require.IsType(t, dataMsg{}, msg)

	next, _ := m.Update(msg)
	m = next.(model)
	assert.True(t, m.ready)
	assert.Contains(t, m.View(), "web1.example.com")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 8))
	assert.Equal(t, "avery...", truncate("averylongname", 8))
}

func TestHealthBar(t *testing.T) {
	assert.Equal(t, 4, strings.Count(healthBar(4, 4, 4), "■"))
	assert.Equal(t, 2, strings.Count(healthBar(1, 2, 4), "■"))
	assert.Equal(t, 2, strings.Count(healthBar(1, 2, 4), "□"))
	assert.Equal(t, 4, strings.Count(healthBar(0, 0, 4), "·"))
}

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/monitoring/internal/util"
)

func testConfig(t *testing.T) *util.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := util.DefaultConfigFor(dir)
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Munin.RRDPath = filepath.Join(dir, "munin")
	cfg.Munin.GraphPath = ""
	cfg.Monit.ProbeTimeout = 200 * time.Millisecond

	require.NoError(t, os.MkdirAll(cfg.Munin.RRDPath, 0755))
	require.NoError(t, os.WriteFile(cfg.Munin.DatafilePath(),
		[]byte("version 2.0.57\nexample.com;web1:cpu.user.value 1\n"), 0644))
	return cfg
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := New(testConfig(t), WithoutWeb())
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Stop()
		d.services.Close()
	})
	return d
}

func TestCheckRunning(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, PIDFileName)

	running, pid := CheckRunning(dir)
	assert.False(t, running)
	assert.Zero(t, pid)

	require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0644))
	running, _ = CheckRunning(dir)
	assert.False(t, running)

	require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644))
	running, pid = CheckRunning(dir)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestSendStopWithoutDaemon(t *testing.T) {
	assert.Error(t, SendStop(t.TempDir()))
}

func TestStatusSnapshot(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	report, err := os.ReadFile("../collector/testdata/report.json")
	require.NoError(t, err)
	_, err = d.Services().Collector.Ingest(ctx, report, "application/json")
	require.NoError(t, err)

	require.NoError(t, d.runStatusSnapshot(ctx))

	status, err := ReadStatusFile(d.config.DataDir)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Instances)
	assert.Equal(t, 1, status.Events)
	assert.Equal(t, "2.0.57", status.MuninVersion)
	assert.Equal(t, os.Getpid(), status.PID)
	require.Len(t, status.Jobs, 3)
	assert.Equal(t, jobStatusSnapshot, status.Jobs[0].Name)
	assert.Equal(t, "pending", status.Jobs[0].LastResult)

	_, err = os.Stat(filepath.Join(d.config.DataDir, StatusFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestHTTPDCheck(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	report, err := os.ReadFile("../collector/testdata/report.json")
	require.NoError(t, err)
	_, err = d.Services().Collector.Ingest(ctx, report, "application/json")
	require.NoError(t, err)

	require.NoError(t, d.runHTTPDCheck(ctx))

	status, err := d.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.HTTPD, 1)
	assert.Equal(t, "web1.example.com", status.HTTPD[0].Host)
	assert.Equal(t, "127.0.0.1:2812", status.HTTPD[0].Addr)
}

func TestHTTPDCheckDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monit.ProbeTimeout = 0
	d, err := New(cfg, WithoutWeb())
	require.NoError(t, err)
	defer d.services.Close()

	assert.Nil(t, d.scheduler.GetJob(jobHTTPDCheck))
	assert.NotNil(t, d.scheduler.GetJob(jobStatusSnapshot))
}

func TestStatsWarmFailsWithoutDatafile(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, d.runStatsWarm(context.Background()))

	require.NoError(t, os.Remove(d.config.Munin.DatafilePath()))
	d.services.Stats.Invalidate()
	assert.Error(t, d.runStatsWarm(context.Background()))
}

func TestStartWritesAndRemovesPIDFile(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, d.Start())
	assert.Error(t, d.Start())

	running, pid := CheckRunning(d.config.DataDir)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, d.IsRunning())

	require.NoError(t, d.Stop())
	d.Wait()
	assert.False(t, d.IsRunning())
	assert.False(t, util.FileExists(filepath.Join(d.config.DataDir, PIDFileName)))
}

func TestSchedulerRunJob(t *testing.T) {
	s := NewScheduler(context.Background(), util.NopLogger())

	calls := 0
	fail := true
	s.AddJob(&Job{
		Name:     "probe",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			calls++
			if fail {
				return errors.New("boom")
			}
			return nil
		},
	})
	job := s.GetJob("probe")
	require.NotNil(t, job)
	assert.Nil(t, s.GetJob("missing"))

	before := time.Now()
	s.runJob(job)
	st := s.JobStatuses()[0]
	assert.Equal(t, "boom", st.LastResult)
	assert.Equal(t, 1, st.ErrorCount)
	assert.WithinDuration(t, before.Add(30*time.Second), st.NextRun, 5*time.Second)

	fail = false
	s.runJob(job)
	st = s.JobStatuses()[0]
	assert.Equal(t, "ok", st.LastResult)
	assert.Equal(t, 1, st.ErrorCount)
	assert.Equal(t, 2, calls)

	assert.True(t, s.TriggerJob("probe"))
	assert.False(t, s.TriggerJob("missing"))
	assert.False(t, time.Now().Before(s.GetJob("probe").nextRun))
}

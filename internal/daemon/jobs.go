package daemon

import (
	"context"
	"os"
	"time"

	"github.com/user/monitoring/internal/model"
	"github.com/user/monitoring/internal/probes"
	"github.com/user/monitoring/internal/storage"
)

const (
	jobStatusSnapshot = "status_snapshot"
	jobStatsWarm      = "stats_warm"
	jobHTTPDCheck     = "httpd_check"
)

func (d *Daemon) registerJobs() {
	d.scheduler.AddJob(&Job{
		Name:     jobStatusSnapshot,
		Interval: d.config.StatusInterval,
		Run:      d.runStatusSnapshot,
	})

	// Keeps the parsed datafile fresh so bridge requests rarely wait on a read.
	d.scheduler.AddJob(&Job{
		Name:     jobStatsWarm,
		Interval: d.config.Munin.CacheTTL,
		Run:      d.runStatsWarm,
	})

	if d.config.Monit.ProbeTimeout > 0 {
		d.scheduler.AddJob(&Job{
			Name:     jobHTTPDCheck,
			Interval: d.config.StatusInterval,
			Run:      d.runHTTPDCheck,
		})
	}
}

// Status collects the current daemon status.
func (d *Daemon) Status(ctx context.Context) (*model.DaemonStatus, error) {
	d.mu.RLock()
	running, started := d.running, d.startTime
	d.mu.RUnlock()

	status := &model.DaemonStatus{
		Running:   running,
		PID:       os.Getpid(),
		StartTime: started,
		Uptime:    time.Since(started).Round(time.Second).String(),
		LastCheck: time.Now(),
		Jobs:      d.scheduler.JobStatuses(),
		HTTPD:     d.lastHTTPD(),
	}
	for _, j := range status.Jobs {
		if j.Running {
			status.JobsRunning++
		}
	}

	var err error
	if status.Instances, err = storage.NewMonitStorage(d.services.DB).Count(ctx); err != nil {
		return nil, err
	}
	if status.Events, err = storage.NewEventStorage(d.services.DB).Count(ctx); err != nil {
		return nil, err
	}
	if stats, err := d.services.Stats.Get(ctx); err == nil {
		status.MuninVersion = stats.Version
	} else {
		d.log.Debug("Munin stats unavailable: %v", err)
	}
	return status, nil
}

func (d *Daemon) runStatusSnapshot(ctx context.Context) error {
	status, err := d.Status(ctx)
	if err != nil {
		return err
	}
	if err := WriteStatusFile(d.config.DataDir, status); err != nil {
		return err
	}
	d.log.Debug("Status snapshot: %d instances, %d events", status.Instances, status.Events)
	return nil
}

func (d *Daemon) runStatsWarm(ctx context.Context) error {
	stats, err := d.services.Stats.Get(ctx)
	if err != nil {
		return err
	}
	d.log.Debug("Munin stats cached: %d domains", len(stats.Domains))
	return nil
}

func (d *Daemon) runHTTPDCheck(ctx context.Context) error {
	instances, err := storage.NewMonitStorage(d.services.DB).List(ctx)
	if err != nil {
		return err
	}

	probe := probes.NewHTTPDProbe(d.config.Monit.ProbeConcurrency, d.config.Monit.ProbeTimeout)
	results := probe.Check(ctx, probes.TargetsFor(instances))

	down := 0
	for _, r := range results {
		if !r.Reachable {
			down++
			d.log.Warn("monit httpd of %s at %s unreachable: %s", r.Host, r.Addr, r.Error)
		}
	}
	d.log.Debug("httpd check: %d/%d reachable", len(results)-down, len(results))

	d.mu.Lock()
	d.httpd = results
	d.mu.Unlock()
	return nil
}

func (d *Daemon) lastHTTPD() []model.HTTPDCheck {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]model.HTTPDCheck(nil), d.httpd...)
}

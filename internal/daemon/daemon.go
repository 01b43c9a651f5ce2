// Package daemon runs the collector web server and periodic jobs in the
// background.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/user/monitoring/internal/collector"
	"github.com/user/monitoring/internal/model"
	"github.com/user/monitoring/internal/munin"
	"github.com/user/monitoring/internal/storage"
	"github.com/user/monitoring/internal/util"
	"github.com/user/monitoring/internal/web"
)

// PIDFileName is the name of the pid file in the data directory.
const PIDFileName = "monitoring.pid"

// Services are the long-lived components shared by the web server and the
// daemon jobs.
type Services struct {
	DB        *storage.DB
	Collector *collector.Collector
	Stats     *munin.Cache
	Grapher   *munin.Grapher
	Web       *web.Server
}

// Wire opens the database and builds every component from cfg.
func Wire(ctx context.Context, cfg *util.Config, log *util.Logger) (*Services, error) {
	db, err := storage.Open(ctx, cfg.DBPath, storage.Options{
		BusyTimeout: cfg.DBBusyTimeout,
		Logger:      log,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize database")
	}

	svc := &Services{
		DB:        db,
		Collector: collector.New(db, collector.NewArchive(cfg.Monit.LogDir), log),
		Stats: munin.NewCache(cfg.Munin.DatafilePath(),
			munin.WithTTL(cfg.Munin.CacheTTL), munin.WithLogger(log)),
		Grapher: munin.NewGrapher(cfg.Munin.GraphPath, cfg.Munin.GraphDir,
			munin.WithGraphLogger(log)),
	}
	svc.Web = web.NewServer(db, cfg, svc.Collector, svc.Stats, svc.Grapher, log)
	return svc, nil
}

// Close releases the database.
func (s *Services) Close() error {
	return s.DB.Close()
}

// Daemon manages the background service.
type Daemon struct {
	config    *util.Config
	services  *Services
	scheduler *Scheduler
	log       *util.Logger
	pidFile   string
	serveWeb  bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	startTime time.Time
	httpd     []model.HTTPDCheck
	mu        sync.RWMutex
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithoutWeb runs only the scheduled jobs.
func WithoutWeb() Option {
	return func(d *Daemon) { d.serveWeb = false }
}

// New creates a new daemon instance.
func New(cfg *util.Config, opts ...Option) (*Daemon, error) {
	log := util.GetLogger().Named("daemon")

	ctx, cancel := context.WithCancel(context.Background())
	services, err := Wire(ctx, cfg, util.GetLogger())
	if err != nil {
		cancel()
		return nil, err
	}

	d := &Daemon{
		config:   cfg,
		services: services,
		log:      log,
		pidFile:  filepath.Join(cfg.DataDir, PIDFileName),
		serveWeb: true,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.scheduler = NewScheduler(ctx, log)
	d.registerJobs()

	return d, nil
}

// Start starts the daemon.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.writePIDFile(); err != nil {
		return errors.Wrap(err, "failed to write PID file")
	}

	d.log.Info("Daemon starting...")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scheduler.Run()
	}()

	if d.serveWeb {
		d.wg.Add(2)
		go func() {
			defer d.wg.Done()
			if err := d.services.Web.Start(); err != nil {
				d.log.Error("Web server error: %v", err)
				d.cancel()
			}
		}()
		go func() {
			defer d.wg.Done()
			<-d.ctx.Done()
			if err := d.services.Web.Stop(); err != nil {
				d.log.Warn("Web server shutdown: %v", err)
			}
		}()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handleSignals()
	}()

	d.log.Info("Daemon started with PID %d", os.Getpid())

	return nil
}

// Wait blocks until the daemon context is cancelled by a signal, a web
// server failure or Stop, and every goroutine has returned.
func (d *Daemon) Wait() {
	d.wg.Wait()
}

// Stop stops the daemon gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.log.Info("Daemon stopping...")

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("Daemon stopped gracefully")
	case <-time.After(30 * time.Second):
		d.log.Warn("Daemon stop timed out")
	}

	d.removePIDFile()
	return d.services.Close()
}

func (d *Daemon) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.log.Info("Received signal: %v", sig)
		d.cancel()
	case <-d.ctx.Done():
	}
}

func (d *Daemon) writePIDFile() error {
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) removePIDFile() {
	os.Remove(d.pidFile)
}

// IsRunning returns whether the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Services returns the wired components.
func (d *Daemon) Services() *Services {
	return d.services
}

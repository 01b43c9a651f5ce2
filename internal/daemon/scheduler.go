package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/user/monitoring/internal/model"
	"github.com/user/monitoring/internal/util"
)

// Job represents a scheduled job.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	lastRun    time.Time
	nextRun    time.Time
	lastError  error
	errorCount int
	running    bool
	mu         sync.RWMutex
}

// Scheduler runs jobs at their interval.
type Scheduler struct {
	ctx   context.Context
	log   *util.Logger
	delay time.Duration
	jobs  []*Job
	mu    sync.RWMutex
}

// NewScheduler creates a new scheduler.
func NewScheduler(ctx context.Context, log *util.Logger) *Scheduler {
	return &Scheduler{
		ctx:   ctx,
		log:   log,
		delay: 5 * time.Second,
		jobs:  make([]*Job, 0),
	}
}

// AddJob adds a job to the scheduler. Its first run is after a short delay.
func (s *Scheduler) AddJob(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.nextRun = time.Now().Add(s.delay)
	s.jobs = append(s.jobs, job)
}

// Run starts the scheduler.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	s.log.Info("Scheduler started with %d jobs", len(s.jobs))

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("Scheduler stopping")
			return
		case now := <-ticker.C:
			s.checkJobs(now)
		}
	}
}

func (s *Scheduler) checkJobs(now time.Time) {
	s.mu.RLock()
	jobs := s.jobs
	s.mu.RUnlock()

	for _, job := range jobs {
		job.mu.RLock()
		shouldRun := !job.running && !now.Before(job.nextRun)
		job.mu.RUnlock()

		if shouldRun {
			go s.runJob(job)
		}
	}
}

func (s *Scheduler) runJob(job *Job) {
	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		return
	}
	job.running = true
	job.lastRun = time.Now()
	job.mu.Unlock()

	s.log.Debug("Running job: %s", job.Name)

	ctx, cancel := context.WithTimeout(s.ctx, job.Interval)
	defer cancel()

	err := job.Run(ctx)

	job.mu.Lock()
	job.running = false
	if err != nil {
		job.lastError = err
		job.errorCount++
		s.log.Warn("Job %s failed: %v", job.Name, err)
		// Retry sooner after a failure.
		job.nextRun = time.Now().Add(job.Interval / 2)
	} else {
		job.lastError = nil
		s.log.Debug("Job %s completed successfully", job.Name)
		job.nextRun = time.Now().Add(job.Interval)
	}
	job.mu.Unlock()
}

// JobStatuses returns the status of all jobs.
func (s *Scheduler) JobStatuses() []model.JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]model.JobStatus, len(s.jobs))
	for i, job := range s.jobs {
		job.mu.RLock()
		status := model.JobStatus{
			Name:       job.Name,
			LastRun:    job.lastRun,
			NextRun:    job.nextRun,
			LastResult: "ok",
			ErrorCount: job.errorCount,
			Running:    job.running,
		}
		if job.lastRun.IsZero() {
			status.LastResult = "pending"
		}
		if job.lastError != nil {
			status.LastResult = job.lastError.Error()
		}
		job.mu.RUnlock()
		statuses[i] = status
	}

	return statuses
}

// GetJob returns a job by name.
func (s *Scheduler) GetJob(name string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.Name == name {
			return job
		}
	}
	return nil
}

// TriggerJob makes a job due on the next tick.
func (s *Scheduler) TriggerJob(name string) bool {
	job := s.GetJob(name)
	if job == nil {
		return false
	}

	job.mu.Lock()
	job.nextRun = time.Now()
	job.mu.Unlock()

	return true
}

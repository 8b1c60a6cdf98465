// Package jobs provides background job scheduling.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ioms/backend/internal/metrics"
)

// JobFunc is the function signature for jobs.
type JobFunc func(ctx context.Context) error

// Job represents a scheduled job.
type Job struct {
	Name     string
	Schedule string
	Func     JobFunc
	EntryID  cron.EntryID
}

// Scheduler manages background jobs. Schedules use six fields, seconds first.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]*Job
	logger  *slog.Logger
	timeout time.Duration
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewScheduler creates a job scheduler. Each run is bounded by timeout.
// Overlapping runs of the same job are skipped.
func NewScheduler(logger *slog.Logger, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		jobs:    make(map[string]*Job),
		logger:  logger.With(slog.String("op", "jobs.Scheduler")),
		timeout: timeout,
	}
}

// Register adds a job to the scheduler.
func (s *Scheduler) Register(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}

	job := &Job{
		Name:     name,
		Schedule: schedule,
		Func:     fn,
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.runJob(job)
	})
	if err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", name, schedule, err)
	}

	job.EntryID = entryID
	s.jobs[name] = job

	s.logger.Info("job registered", "name", name, "schedule", schedule)
	return nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop stops the scheduler and waits for running jobs, including those
// started by RunNow.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow runs a job in the background immediately.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(job)
	}()
	return nil
}

func (s *Scheduler) runJob(job *Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Debug("job started", "name", job.Name)

	err := job.Func(ctx)

	duration := time.Since(start)
	metrics.JobDuration.WithLabelValues(job.Name).Observe(duration.Seconds())
	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
		s.logger.Error("job failed", "name", job.Name, "duration", duration, "error", err)
	} else {
		metrics.JobRuns.WithLabelValues(job.Name, "ok").Inc()
		s.logger.Debug("job completed", "name", job.Name, "duration", duration)
	}
	return err
}

// ListJobs returns all registered jobs ordered by name.
func (s *Scheduler) ListJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

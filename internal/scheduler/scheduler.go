// Package scheduler runs periodic maintenance (expiry sweep, compaction) on
// cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wesm/pushvault/internal/config"
)

// Built-in job names.
const (
	JobSweep   = "sweep"
	JobCompact = "compact"
)

// JobFunc is the callback invoked when a scheduled job should run.
type JobFunc func(ctx context.Context) error

// Maintainer is the store-facing side of the built-in jobs.
// *messages.Manager satisfies it.
type Maintainer interface {
	DeleteExpired(ctx context.Context) (int64, error)
	Compact(ctx context.Context) error
}

// JobStatus represents the state of a scheduled job.
type JobStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

type job struct {
	entryID  cron.EntryID
	schedule string
	fn       JobFunc
	running  bool
	lastRun  time.Time
	lastErr  error
}

// Scheduler manages cron-based maintenance jobs. A job never overlaps
// with itself; a tick that arrives while it is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*job

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running job goroutines
	started bool               // true after Start(), false after Stop()
	stopped bool               // true after Stop()
}

// New creates an empty Scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser())),
		logger: slog.Default(),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

func parser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddJob schedules fn under name, replacing any job with that name.
// Returns an error if the cron expression is invalid.
func (s *Scheduler) AddJob(name, cronExpr string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, exists := s.jobs[name]; exists {
		s.cron.Remove(j.entryID)
		delete(s.jobs, name)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		if fn, ok := s.begin(name); ok {
			s.runJob(name, fn)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[name] = &job{entryID: entryID, schedule: cronExpr, fn: fn}
	s.logger.Info("scheduled job",
		"job", name,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)
	return nil
}

// AddMaintenanceJobs schedules the sweep and compaction jobs configured in
// cfg. An empty schedule leaves that job out. Returns the number of jobs
// scheduled and any errors encountered.
func (s *Scheduler) AddMaintenanceJobs(cfg config.MaintenanceConfig, m Maintainer) (int, []error) {
	var errs []error
	scheduled := 0

	add := func(name, expr string, fn JobFunc) {
		if expr == "" {
			return
		}
		if err := s.AddJob(name, expr, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		scheduled++
	}

	add(JobSweep, cfg.SweepSchedule, func(ctx context.Context) error {
		n, err := m.DeleteExpired(ctx)
		if err == nil && n > 0 {
			s.logger.Info("sweep removed expired messages", "count", n)
		}
		return err
	})
	add(JobCompact, cfg.CompactSchedule, m.Compact)

	return scheduled, errs
}

// RemoveJob removes the job with name.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, exists := s.jobs[name]; exists {
		s.cron.Remove(j.entryID)
		delete(s.jobs, name)
		s.logger.Info("removed job", "job", name)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops the scheduler, cancels running jobs, and returns a context
// that is done when all work completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// begin marks name as running and returns its callback. It reports false
// when the scheduler is stopped, the job is unknown, or it is already running.
func (s *Scheduler) begin(name string) (JobFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if s.stopped || !ok || j.running {
		return nil, false
	}
	j.running = true
	s.wg.Add(1)
	return j.fn, true
}

// runJob executes fn for name. The caller must have called begin.
func (s *Scheduler) runJob(name string, fn JobFunc) {
	defer s.wg.Done()

	s.logger.Debug("starting job", "job", name)
	start := time.Now()
	err := fn(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return
	}
	j.running = false
	if err != nil {
		j.lastErr = err
		s.logger.Error("job failed",
			"job", name,
			"duration", time.Since(start),
			"error", err)
		return
	}
	j.lastRun = time.Now()
	j.lastErr = nil
	s.logger.Debug("job completed",
		"job", name,
		"duration", time.Since(start))
}

// IsScheduled returns true if a job with name exists.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[name]
	return exists
}

// Trigger runs a job now, outside of its schedule. Returns an error if the
// job is already running, unknown, or the scheduler has been stopped.
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	stopped := s.stopped
	j, exists := s.jobs[name]
	running := exists && j.running
	s.mu.RUnlock()

	switch {
	case stopped:
		return fmt.Errorf("scheduler is stopped")
	case !exists:
		return fmt.Errorf("job %s is not scheduled", name)
	case running:
		return fmt.Errorf("job %s already running", name)
	}
	fn, ok := s.begin(name)
	if !ok {
		return fmt.Errorf("job %s already running", name)
	}
	go s.runJob(name, fn)
	return nil
}

// Status returns the state of every job, ordered by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for name, j := range s.jobs {
		status := JobStatus{
			Name:     name,
			Running:  j.running,
			LastRun:  j.lastRun,
			NextRun:  s.cron.Entry(j.entryID).Next,
			Schedule: j.schedule,
		}
		if j.lastErr != nil {
			status.LastError = j.lastErr.Error()
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, k int) bool { return statuses[i].Name < statuses[k].Name })
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := parser().Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

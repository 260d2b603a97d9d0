// Package scheduler runs interval jobs in the background.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const defaultTimeout = 5 * time.Minute

// Job describes one recurring task.
// A tick that arrives while the previous run is still in flight is skipped.
type Job struct {
	Name       string
	Interval   time.Duration
	Timeout    time.Duration // per-run deadline; defaults to 5m
	RunOnStart bool
	Handler    func(ctx context.Context) error

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
	runs    int
	skipped int
}

// JobStatus is a snapshot of a job's state.
type JobStatus struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Running  bool          `json:"running"`
	LastRun  time.Time     `json:"last_run"`
	LastErr  string        `json:"last_error,omitempty"`
	Runs     int           `json:"runs"`
	Skipped  int           `json:"skipped"`
}

// Status returns the current state of the job.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := JobStatus{
		Name:     j.Name,
		Interval: j.Interval,
		Running:  j.running,
		LastRun:  j.lastRun,
		Runs:     j.runs,
		Skipped:  j.skipped,
	}
	if j.lastErr != nil {
		st.LastErr = j.lastErr.Error()
	}
	return st
}

func (j *Job) tryStart() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		j.skipped++
		return false
	}
	j.running = true
	return true
}

func (j *Job) finish(start time.Time, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.running = false
	j.lastRun = start
	j.lastErr = err
	j.runs++
}

// Scheduler owns a set of interval jobs.
type Scheduler struct {
	mu      sync.RWMutex
	jobs    []*Job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Register adds a job. It must be called before Start.
// Jobs with a non-positive interval are ignored.
func (s *Scheduler) Register(job *Job) {
	if job.Interval <= 0 {
		slog.Info("scheduler: job disabled", "job", job.Name)
		return
	}
	if job.Timeout <= 0 {
		job.Timeout = defaultTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	slog.Info("scheduler: job registered", "job", job.Name, "interval", job.Interval)
}

// Start launches one ticker loop per job. Runs derive their context from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job *Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	slog.Info("scheduler: started", "jobs", len(s.jobs))
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	slog.Info("scheduler: stopped")
}

// Jobs returns the status of all jobs.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.RUnlock()

	statuses := make([]JobStatus, len(jobs))
	for i, j := range jobs {
		statuses[i] = j.Status()
	}
	return statuses
}

func (s *Scheduler) loop(ctx context.Context, job *Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if job.RunOnStart {
		s.trigger(ctx, job)
	}
	for {
		select {
		case <-ticker.C:
			s.trigger(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, job *Job) {
	if !job.tryStart() {
		slog.Warn("scheduler: previous run still in flight, skipping tick", "job", job.Name)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, job)
	}()
}

func (s *Scheduler) run(ctx context.Context, job *Job) {
	ctx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	err := job.Handler(ctx)
	job.finish(start, err)

	elapsed := time.Since(start)
	switch {
	case err == nil:
		slog.Info("scheduler: job finished", "job", job.Name, "elapsed", elapsed)
	case errors.Is(err, context.Canceled):
		slog.Info("scheduler: job cancelled", "job", job.Name, "elapsed", elapsed)
	default:
		slog.Error("scheduler: job failed", "job", job.Name, "elapsed", elapsed, "error", err)
	}
}

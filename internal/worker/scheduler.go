package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/dukerupert/feedgen/internal/telemetry"
	"github.com/google/uuid"
)

// Runner runs one export profile.
type Runner interface {
	RunProfile(ctx context.Context, name string) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string) error

func (f RunnerFunc) RunProfile(ctx context.Context, name string) error { return f(ctx, name) }

// Job regenerates one profile every Interval.
type Job struct {
	Profile  string
	Interval time.Duration
}

// Config holds scheduler configuration
type Config struct {
	// WorkerID uniquely identifies this scheduler instance in logs
	WorkerID string

	// PollInterval is how often due jobs are checked
	PollInterval time.Duration

	// MaxConcurrency is the maximum number of profiles regenerated at once
	MaxConcurrency int

	// RunOnStart runs every job on the first tick instead of after one interval
	RunOnStart bool
}

// Scheduler regenerates feeds on their configured intervals.
type Scheduler struct {
	config Config
	runner Runner
	jobs   []Job
	logger *slog.Logger

	mu      sync.Mutex
	nextRun map[string]time.Time
	running map[string]bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. Jobs with a non-positive interval are ignored.
func NewScheduler(runner Runner, jobs []Job, config Config, logger *slog.Logger) *Scheduler {
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("scheduler-%s", uuid.New().String()[:8])
	}
	if config.PollInterval == 0 {
		config.PollInterval = 10 * time.Second
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	active := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Interval > 0 {
			active = append(active, j)
		}
	}

	return &Scheduler{
		config:  config,
		runner:  runner,
		jobs:    active,
		logger:  logger,
		nextRun: make(map[string]time.Time),
		running: make(map[string]bool),
	}
}

// Jobs returns the scheduled jobs.
func (s *Scheduler) Jobs() []Job {
	return append([]Job(nil), s.jobs...)
}

// Start runs due jobs until ctx is cancelled, then waits for in-flight runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		"worker_id", s.config.WorkerID,
		"jobs", len(s.jobs),
		"poll_interval", s.config.PollInterval,
		"max_concurrency", s.config.MaxConcurrency,
	)

	now := time.Now()
	s.mu.Lock()
	for _, j := range s.jobs {
		if s.config.RunOnStart {
			s.nextRun[j.Profile] = now
		} else {
			s.nextRun[j.Profile] = now.Add(j.Interval)
		}
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, s.config.MaxConcurrency)

	if s.config.RunOnStart {
		s.dispatch(ctx, now, sem)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down", "worker_id", s.config.WorkerID)
			s.wg.Wait()
			return ctx.Err()

		case t := <-ticker.C:
			s.dispatch(ctx, t, sem)
		}
	}
}

// dispatch starts every due job that fits under the concurrency limit.
// Jobs skipped for lack of a slot stay due and are retried next tick.
func (s *Scheduler) dispatch(ctx context.Context, now time.Time, sem chan struct{}) {
	for _, job := range s.due(now) {
		select {
		case sem <- struct{}{}:
			s.markStarted(job, now)
			s.wg.Add(1)
			go func(job Job) {
				defer s.wg.Done()
				defer func() { <-sem }()
				s.run(ctx, job)
			}(job)
		default:
			return
		}
	}
}

// due returns jobs whose next run is at or before now and that are not running.
func (s *Scheduler) due(now time.Time) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Job
	for _, j := range s.jobs {
		if s.running[j.Profile] {
			continue
		}
		next, ok := s.nextRun[j.Profile]
		if !ok || !next.After(now) {
			out = append(out, j)
		}
	}
	return out
}

func (s *Scheduler) markStarted(job Job, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[job.Profile] = true
	s.nextRun[job.Profile] = now.Add(job.Interval)
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	defer func() {
		s.mu.Lock()
		s.running[job.Profile] = false
		s.mu.Unlock()
	}()

	start := time.Now()
	err := s.runner.RunProfile(ctx, job.Profile)
	switch {
	case err == nil:
		s.logger.Info("scheduled export finished", "profile", job.Profile, "duration", time.Since(start))
	case domain.IsCode(err, domain.ECONFLICT):
		s.logger.Info("scheduled export skipped, run in progress", "profile", job.Profile)
	default:
		s.logger.Error("scheduled export failed", "profile", job.Profile, "error", err)
		telemetry.CaptureError(err, map[string]interface{}{"profile": job.Profile, "scheduled": true})
	}
}

// RunDue runs every due job synchronously and returns when they finish.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) {
	sem := make(chan struct{}, s.config.MaxConcurrency)
	s.dispatch(ctx, now, sem)
	s.wg.Wait()
}

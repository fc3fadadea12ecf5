package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/labfleet/labfleet/pkg/command"
	"github.com/labfleet/labfleet/pkg/log"
	"github.com/labfleet/labfleet/pkg/metrics"
	"github.com/labfleet/labfleet/pkg/storage"
	"github.com/labfleet/labfleet/pkg/types"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Job is one recurrent reconciliation pass over the active fleet. Commands
// builds the per-worker command sequence; a worker is skipped when its
// throttle key is still warm.
type Job struct {
	Name        string
	Interval    time.Duration
	Concurrency int64
	// ThrottleKind keys the per-worker throttle; empty disables throttling
	ThrottleKind string
	Commands     func(workerID string) []command.Command
	// FleetCommands runs once per tick instead of fanning out per worker
	FleetCommands func() []command.Command
}

// TickStats summarizes one job tick
type TickStats struct {
	Processed int
	Skipped   int
	Errors    int
}

// Scheduler drives the registered jobs on their intervals. Every tick lists
// the active workers and fans the job's commands out under a bounded
// semaphore; failures are counted and logged, never propagated.
type Scheduler struct {
	store    storage.Store
	mediator *command.Mediator
	throttle *gocache.Cache
	logger   zerolog.Logger

	jobs []Job

	cancel context.CancelFunc
	wg     sync.WaitGroup
	grace  time.Duration
}

// Options tunes scheduler-wide behavior
type Options struct {
	// ThrottleTTL is the minimum spacing between refreshes of one worker,
	// shared with the manual refresh route
	ThrottleTTL time.Duration
	// ShutdownGrace bounds how long Stop waits for in-flight ticks
	ShutdownGrace time.Duration
}

// New creates a scheduler; jobs are added with Register before Start
func New(store storage.Store, mediator *command.Mediator, opts Options) *Scheduler {
	if opts.ThrottleTTL == 0 {
		opts.ThrottleTTL = time.Minute
	}
	if opts.ShutdownGrace == 0 {
		opts.ShutdownGrace = 30 * time.Second
	}
	return &Scheduler{
		store:    store,
		mediator: mediator,
		throttle: gocache.New(opts.ThrottleTTL, 2*opts.ThrottleTTL),
		logger:   log.WithComponent("scheduler"),
		grace:    opts.ShutdownGrace,
	}
}

// Register adds a job to the registry
func (s *Scheduler) Register(job Job) {
	if job.Concurrency <= 0 {
		job.Concurrency = 1
	}
	s.jobs = append(s.jobs, job)
}

// Start launches one ticker goroutine per registered job
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.run(ctx, job)
	}
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop cancels the jobs and waits for in-flight ticks up to the grace period
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
	case <-time.After(s.grace):
		s.logger.Warn().Dur("grace", s.grace).Msg("scheduler stop timed out, abandoning in-flight work")
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	defer s.wg.Done()
	logger := log.WithJob(job.Name)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			stats := s.tick(ctx, job)
			metrics.JobTicksTotal.WithLabelValues(job.Name).Inc()
			metrics.JobTickDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())
			logger.Debug().
				Int("processed", stats.Processed).
				Int("skipped", stats.Skipped).
				Int("errors", stats.Errors).
				Dur("took", time.Since(start)).
				Msg("tick finished")
		}
	}
}

// tick runs one pass of a job over every active worker
func (s *Scheduler) tick(ctx context.Context, job Job) TickStats {
	logger := log.WithJob(job.Name)

	if job.FleetCommands != nil {
		stats := TickStats{}
		for _, cmd := range job.FleetCommands() {
			res := s.mediator.Dispatch(ctx, cmd)
			if res.Failed() {
				stats.Errors++
				logger.Warn().
					Str("command", cmd.CommandName()).
					Str("status", string(res.Status)).
					Str("message", res.Message).
					Msg("fleet pass failed")
				continue
			}
			stats.Processed++
		}
		return stats
	}

	workers, err := s.store.ListWorkers()
	if err != nil {
		logger.Error().Err(err).Msg("listing workers failed")
		return TickStats{Errors: 1}
	}

	sem := semaphore.NewWeighted(job.Concurrency)
	var (
		mu    sync.Mutex
		stats TickStats
	)
	var wg sync.WaitGroup
	for _, w := range workers {
		if !w.Status.Active() {
			continue
		}
		if !s.Claim(job.ThrottleKind, w.ID) {
			mu.Lock()
			stats.Skipped++
			mu.Unlock()
			metrics.JobWorkersProcessed.WithLabelValues(job.Name, "skipped").Inc()
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			// cancelled mid-tick; wait for the workers already launched so
			// nothing outlives the tick or races the stats read
			wg.Wait()
			return stats
		}
		wg.Add(1)
		go func(w *types.Worker) {
			defer wg.Done()
			defer sem.Release(1)
			outcome := "ok"
			for _, cmd := range job.Commands(w.ID) {
				res := s.mediator.Dispatch(ctx, cmd)
				if res.Status == command.StatusInternal || res.Status == command.StatusFailedDependency {
					outcome = "error"
					logger.Warn().
						Str("worker_id", w.ID).
						Str("command", cmd.CommandName()).
						Str("status", string(res.Status)).
						Str("message", res.Message).
						Msg("worker pass failed")
					break
				}
			}
			mu.Lock()
			if outcome == "error" {
				stats.Errors++
			} else {
				stats.Processed++
			}
			mu.Unlock()
			metrics.JobWorkersProcessed.WithLabelValues(job.Name, outcome).Inc()
		}(w)
	}
	wg.Wait()
	return stats
}

// Claim takes the throttle slot for (kind, worker) and reports whether the
// caller may proceed. The manual refresh route claims through the same cache
// so scheduled and on-demand refreshes never double up inside the TTL.
func (s *Scheduler) Claim(kind, workerID string) bool {
	if kind == "" {
		return true
	}
	key := kind + "/" + workerID
	if _, found := s.throttle.Get(key); found {
		return false
	}
	s.throttle.SetDefault(key, struct{}{})
	return true
}

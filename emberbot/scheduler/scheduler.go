package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler owns every periodic job in the bot. Jobs run on clock tickers so
// tests can drive them with a mock clock, and Shutdown stops all of them
// before the process exits.
type Scheduler struct {
	clock  clock.Clock
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	jobs   map[string]*job
	mu     sync.Mutex
}

type job struct {
	name     string
	interval time.Duration
	cancel   context.CancelFunc
}

func New(clk clock.Clock) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:  clk,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// Every registers and starts a named periodic job. Registering a name twice
// replaces the previous job.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[name]; ok {
		slog.Warn("Job already registered, replacing", slog.String("job", name))
		existing.cancel()
	}

	jobCtx, jobCancel := context.WithCancel(s.ctx)
	s.jobs[name] = &job{name: name, interval: interval, cancel: jobCancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := s.clock.Ticker(interval)
		defer ticker.Stop()

		slog.Info("Scheduled job started",
			slog.String("type", "sys"),
			slog.String("job", name),
			slog.Duration("interval", interval))

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				s.run(jobCtx, name, fn)
			}
		}
	}()
}

func (s *Scheduler) run(ctx context.Context, name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduled job panic",
				slog.String("job", name),
				slog.Any("panic", r))
		}
	}()
	fn(ctx)
}

// Stop cancels a single job by name.
func (s *Scheduler) Stop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		j.cancel()
		delete(s.jobs, name)
		slog.Info("Scheduled job stopped", slog.String("job", name))
	}
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Shutdown cancels every job and waits for the goroutines to drain.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	count := len(s.jobs)
	s.mu.Unlock()

	slog.Info("Shutting down scheduler", slog.Int("jobs", count))
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for scheduled jobs to stop",
			slog.Duration("timeout", timeout))
		return context.DeadlineExceeded
	}
}

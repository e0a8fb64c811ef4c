package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// gosched yields so the job goroutine can register its ticker on the mock
// clock before time is advanced.
func gosched() { time.Sleep(5 * time.Millisecond) }

// waitFor polls until the counter reaches want or the deadline passes.
func waitFor(t *testing.T, counter *atomic.Int64, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if counter.Load() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("counter = %d, want %d", counter.Load(), want)
}

func TestEveryRunsOnInterval(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)
	defer s.Shutdown(time.Second)

	var runs atomic.Int64
	s.Every("tick", time.Minute, func(ctx context.Context) {
		runs.Add(1)
	})
	gosched()

	clk.Add(3 * time.Minute)
	waitFor(t, &runs, 3)
}

func TestStopCancelsJob(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)
	defer s.Shutdown(time.Second)

	var runs atomic.Int64
	s.Every("tick", time.Minute, func(ctx context.Context) {
		runs.Add(1)
	})
	gosched()

	clk.Add(time.Minute)
	waitFor(t, &runs, 1)

	s.Stop("tick")
	gosched()
	clk.Add(5 * time.Minute)
	gosched()

	if got := runs.Load(); got != 1 {
		t.Errorf("runs after stop = %d, want 1", got)
	}
	if s.JobCount() != 0 {
		t.Errorf("JobCount = %d, want 0", s.JobCount())
	}
}

func TestReregisteringReplacesJob(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)
	defer s.Shutdown(time.Second)

	var first, second atomic.Int64
	s.Every("tick", time.Minute, func(ctx context.Context) { first.Add(1) })
	gosched()
	s.Every("tick", time.Minute, func(ctx context.Context) { second.Add(1) })
	gosched()

	if s.JobCount() != 1 {
		t.Fatalf("JobCount = %d, want 1", s.JobCount())
	}

	clk.Add(2 * time.Minute)
	waitFor(t, &second, 2)
	if got := first.Load(); got != 0 {
		t.Errorf("replaced job still ran %d times", got)
	}
}

func TestPanickingJobKeepsRunning(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)
	defer s.Shutdown(time.Second)

	var runs atomic.Int64
	s.Every("explosive", time.Minute, func(ctx context.Context) {
		runs.Add(1)
		panic("boom")
	})
	gosched()

	clk.Add(time.Minute)
	waitFor(t, &runs, 1)
	clk.Add(time.Minute)
	waitFor(t, &runs, 2)
}

func TestShutdownDrainsJobs(t *testing.T) {
	clk := clock.NewMock()
	s := New(clk)

	s.Every("a", time.Minute, func(ctx context.Context) {})
	s.Every("b", time.Hour, func(ctx context.Context) {})
	gosched()

	if err := s.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

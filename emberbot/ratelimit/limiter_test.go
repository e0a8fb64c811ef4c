package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestLimiter() (*Limiter, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	return New(clk, Rule{Limit: 5, Window: time.Minute}), clk
}

func TestWindowLimit(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		r := l.Attempt("u1", "cmd")
		if !r.Allowed {
			t.Fatalf("attempt %d denied: %+v", i+1, r)
		}
		if r.Remaining != 5-(i+1) {
			t.Errorf("attempt %d remaining = %d, want %d", i+1, r.Remaining, 5-(i+1))
		}
	}

	r := l.Attempt("u1", "cmd")
	if r.Allowed {
		t.Fatal("sixth attempt allowed")
	}
	if r.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want half the window", r.RetryAfter)
	}
}

func TestUsersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 6; i++ {
		l.Attempt("u1", "cmd")
	}
	if r := l.Attempt("u2", "cmd"); !r.Allowed {
		t.Errorf("u2 blocked by u1's attempts: %+v", r)
	}
}

// A lockout rejects on its own until it expires, and the attempts still inside
// the window then re-arm it. Only once both have aged out is the user allowed
// again.
func TestLockoutOutlastsWindowPruning(t *testing.T) {
	l, clk := newTestLimiter()

	for i := 0; i < 5; i++ {
		l.Attempt("u1", "cmd")
	}
	if r := l.Attempt("u1", "cmd"); r.Allowed {
		t.Fatal("expected denial at the limit")
	}

	clk.Add(29 * time.Second)
	r := l.Attempt("u1", "cmd")
	if r.Allowed {
		t.Fatal("allowed during lockout")
	}
	if r.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want 1s left on the lockout", r.RetryAfter)
	}

	// Lockout expired, but the original attempts are still inside the window.
	clk.Add(2 * time.Second)
	if r := l.Attempt("u1", "cmd"); r.Allowed {
		t.Fatal("allowed while the window still holds the attempts")
	}

	clk.Add(30 * time.Second)
	if r := l.Attempt("u1", "cmd"); !r.Allowed {
		t.Errorf("denied after both lockout and window expired: %+v", r)
	}
}

func TestPerActionRule(t *testing.T) {
	l, _ := newTestLimiter()
	l.SetRule("gamble", Rule{Limit: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		if r := l.Attempt("u1", "gamble"); !r.Allowed {
			t.Fatalf("gamble attempt %d denied", i+1)
		}
	}
	if r := l.Attempt("u1", "gamble"); r.Allowed {
		t.Error("fourth gamble allowed under the stricter rule")
	}

	// The fallback rule still governs other actions for the same user.
	if r := l.Attempt("u1", "cmd"); !r.Allowed {
		t.Errorf("fallback action denied: %+v", r)
	}
}

func TestCleanupDropsStaleStates(t *testing.T) {
	l, clk := newTestLimiter()

	l.Attempt("u1", "cmd")
	l.Attempt("u2", "cmd")

	l.Cleanup(context.Background())
	l.mu.Lock()
	n := len(l.states)
	l.mu.Unlock()
	if n != 2 {
		t.Fatalf("live states swept early: %d, want 2", n)
	}

	clk.Add(2 * time.Minute)
	l.Cleanup(context.Background())
	l.mu.Lock()
	n = len(l.states)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("stale states after sweep = %d, want 0", n)
	}
}

func TestCleanupKeepsLockedOutStates(t *testing.T) {
	l, clk := newTestLimiter()

	for i := 0; i < 6; i++ {
		l.Attempt("u1", "cmd")
	}
	clk.Add(10 * time.Second)
	l.Cleanup(context.Background())

	if r := l.Attempt("u1", "cmd"); r.Allowed {
		t.Error("cleanup erased an active lockout")
	}
}

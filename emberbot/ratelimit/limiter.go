package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Rule configures a sliding window for one action.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result reports the outcome of an attempt.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a sliding-window rate limiter keyed by (user, action). Hitting
// the limit additionally sets a lockout for half the window; the lockout is
// checked before pruning and keeps rejecting even after the old attempts age
// out of the window.
type Limiter struct {
	clock   clock.Clock
	mu      sync.Mutex
	rules   map[string]Rule
	fallback Rule
	states  map[string]*state
}

type state struct {
	attempts     []time.Time
	lockoutUntil time.Time
}

func New(clk clock.Clock, fallback Rule) *Limiter {
	return &Limiter{
		clock:    clk,
		rules:    make(map[string]Rule),
		fallback: fallback,
		states:   make(map[string]*state),
	}
}

// SetRule installs a per-action rule overriding the fallback.
func (l *Limiter) SetRule(action string, rule Rule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules[action] = rule
}

func (l *Limiter) rule(action string) Rule {
	if r, ok := l.rules[action]; ok {
		return r
	}
	return l.fallback
}

// Attempt records one attempt and reports whether it is allowed.
func (l *Limiter) Attempt(userID, action string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	rule := l.rule(action)
	key := userID + ":" + action

	st, ok := l.states[key]
	if !ok {
		st = &state{}
		l.states[key] = st
	}

	// Lockout wins over window pruning.
	if st.lockoutUntil.After(now) {
		return Result{Allowed: false, RetryAfter: st.lockoutUntil.Sub(now)}
	}

	cutoff := now.Add(-rule.Window)
	kept := st.attempts[:0]
	for _, at := range st.attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	st.attempts = kept

	if len(st.attempts) >= rule.Limit {
		st.lockoutUntil = now.Add(rule.Window / 2)
		return Result{Allowed: false, RetryAfter: rule.Window / 2}
	}

	st.attempts = append(st.attempts, now)
	return Result{Allowed: true, Remaining: rule.Limit - len(st.attempts)}
}

// Cleanup drops empty states; registered on the scheduler at a one-minute
// interval.
func (l *Limiter) Cleanup(_ context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for key, st := range l.states {
		if st.lockoutUntil.After(now) {
			continue
		}
		live := false
		for _, at := range st.attempts {
			// The widest configured window bounds how long attempts matter.
			if now.Sub(at) < l.widestWindowLocked() {
				live = true
				break
			}
		}
		if !live {
			delete(l.states, key)
		}
	}
}

func (l *Limiter) widestWindowLocked() time.Duration {
	widest := l.fallback.Window
	for _, r := range l.rules {
		if r.Window > widest {
			widest = r.Window
		}
	}
	return widest
}

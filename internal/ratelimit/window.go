// Package ratelimit bounds outbound model calls to a sliding per-window quota.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultCapacity leaves headroom under a 20 requests/minute provider quota.
	DefaultCapacity = 18
	// DefaultPeriod is the length of the sliding window.
	DefaultPeriod = time.Minute

	// slack is added to computed waits so the oldest entry has actually left
	// the window when the caller retries.
	slack = 100 * time.Millisecond
)

// Window is a sliding-window limiter over call timestamps.
//
// All reads and writes of the timestamp list happen under one mutex so that
// the admission check and the append are atomic with respect to concurrent
// callers.
type Window struct {
	capacity int
	period   time.Duration
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	mu    sync.Mutex
	calls []time.Time
}

// Option configures a Window.
type Option func(*Window)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// WithSleep replaces the context-aware sleep used by Acquire.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(w *Window) { w.sleep = sleep }
}

// WithPeriod overrides the window length.
func WithPeriod(d time.Duration) Option {
	return func(w *Window) {
		if d > 0 {
			w.period = d
		}
	}
}

// New creates a limiter admitting capacity calls per period.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int, opts ...Option) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	w := &Window{
		capacity: capacity,
		period:   DefaultPeriod,
		now:      time.Now,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Capacity returns the configured number of calls per window.
func (w *Window) Capacity() int { return w.capacity }

// TryAcquire reports whether a call may be made now. When it may not, wait is
// how long until the oldest recorded call leaves the window.
// TryAcquire does not record anything.
func (w *Window) TryAcquire() (allowed bool, wait time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.check(w.now())
}

// Record notes that a call was made now.
func (w *Window) Record() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, w.now())
}

// Reserve checks and records in one step. It returns true and records the
// call when allowed; otherwise it returns false and the wait.
func (w *Window) Reserve() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	allowed, wait := w.check(now)
	if allowed {
		w.calls = append(w.calls, now)
	}
	return allowed, wait
}

// Acquire blocks until a call is admitted and recorded, or ctx is done.
// It returns the total time spent waiting.
func (w *Window) Acquire(ctx context.Context) (time.Duration, error) {
	var waited time.Duration
	for {
		ok, wait := w.Reserve()
		if ok {
			return waited, nil
		}
		if err := w.sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}

// Len returns the number of calls currently inside the window.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.calls)
}

// check must be called with mu held.
func (w *Window) check(now time.Time) (bool, time.Duration) {
	w.prune(now)
	if len(w.calls) < w.capacity {
		return true, 0
	}
	age := now.Sub(w.calls[0])
	wait := w.period - age + slack
	if wait > w.period {
		wait = w.period
	}
	return false, wait
}

func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.period)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

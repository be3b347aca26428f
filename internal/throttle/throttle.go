// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package throttle rate-limits how often a function runs.
//
// A Throttler is a leading + trailing throttle: the first call after a quiet
// window runs immediately, and any calls that arrive while the window is open
// collapse into a single trailing run when it closes. The function is expected
// to read whatever state it needs when it runs, so the trailing run always
// sees the latest value.
//
// Thread-safety: all methods may be called from any goroutine. The wrapped
// function is never called with the internal lock held.
package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the notification window used while streaming.
const DefaultInterval = 100 * time.Millisecond

// =============================================================================
// THROTTLER
// =============================================================================

// Throttler limits fn to one run per interval.
type Throttler struct {
	mu       sync.Mutex
	fn       func()
	interval time.Duration
	limiter  *rate.Limiter
	reserved *rate.Reservation
	timer    *time.Timer
	pending  bool
	stopped  bool
}

// New creates a Throttler around fn. An interval of zero or less runs fn
// synchronously on every Trigger.
func New(interval time.Duration, fn func()) *Throttler {
	t := &Throttler{fn: fn}
	t.setInterval(interval)
	return t
}

// setInterval must be called with mu held or before the Throttler is shared.
func (t *Throttler) setInterval(interval time.Duration) {
	t.interval = interval
	if interval > 0 {
		t.limiter = rate.NewLimiter(rate.Every(interval), 1)
	} else {
		t.limiter = nil
	}
}

// Interval returns the current window.
func (t *Throttler) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// SetInterval changes the window. A pending trailing run keeps its
// original deadline.
func (t *Throttler) SetInterval(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setInterval(interval)
}

// Trigger requests a run. It runs fn immediately when the window has
// elapsed, otherwise it makes sure exactly one trailing run is scheduled.
func (t *Throttler) Trigger() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.limiter == nil {
		t.mu.Unlock()
		t.fn()
		return
	}
	if t.pending {
		t.mu.Unlock()
		return
	}

	now := time.Now()
	r := t.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		t.mu.Unlock()
		t.fn()
		return
	}

	t.pending = true
	t.reserved = r
	t.timer = time.AfterFunc(delay, t.fire)
	t.mu.Unlock()
}

// fire is the trailing run scheduled by Trigger.
func (t *Throttler) fire() {
	t.mu.Lock()
	if !t.pending || t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.reserved = nil
	t.timer = nil
	t.mu.Unlock()

	t.fn()
}

// Pending reports whether a trailing run is scheduled.
func (t *Throttler) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Flush runs a pending trailing call now instead of at the end of the
// window. It reports whether anything ran.
func (t *Throttler) Flush() bool {
	if !t.cancelPending() {
		return false
	}
	t.fn()
	return true
}

// Now cancels any pending trailing call and runs fn synchronously.
func (t *Throttler) Now() {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}
	t.cancelPending()
	t.fn()
}

// Stop cancels any pending run and disables the Throttler.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.dropPendingLocked()
}

func (t *Throttler) cancelPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pending || t.stopped {
		return false
	}
	t.dropPendingLocked()
	return true
}

// dropPendingLocked stops the trailing timer and hands its reserved token
// back, so the next window starts from the last real run.
func (t *Throttler) dropPendingLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.reserved != nil {
		t.reserved.CancelAt(time.Now())
		t.reserved = nil
	}
	t.pending = false
}

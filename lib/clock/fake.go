// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when Advance is called.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	deadline time.Time
	channel  chan time.Time
	// period is non-zero for tickers, which are rescheduled after
	// firing instead of being dropped.
	period  time.Duration
	stopped bool
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// Now returns the fake time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After registers a one-shot timer.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- f.now
		return channel
	}
	f.addLocked(&fakeTimer{deadline: f.now.Add(d), channel: channel})
	return channel
}

// NewTicker registers a periodic timer.
func (f *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	timer := &fakeTimer{
		deadline: f.now.Add(d),
		channel:  make(chan time.Time, 1),
		period:   d,
	}
	f.addLocked(timer)
	return &Ticker{
		C: timer.channel,
		stop: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			timer.stopped = true
			f.changed.Broadcast()
		},
	}
}

// Advance moves time forward by d, firing every timer whose deadline
// is reached, earliest first. A ticker spanning several periods fires
// once per period; sends never block, so ticks beyond the channel
// capacity are dropped.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.now.Add(d)
	for {
		next := f.nextDueLocked(target)
		if next == nil {
			break
		}
		f.now = next.deadline
		select {
		case next.channel <- next.deadline:
		default:
		}
		if next.period > 0 {
			next.deadline = next.deadline.Add(next.period)
		} else {
			next.stopped = true
		}
	}
	f.now = target
	f.compactLocked()
}

// WaitForTimers blocks until at least n timers are pending.
func (f *FakeClock) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.activeLocked() < n {
		f.changed.Wait()
	}
}

// PendingCount returns the number of timers that have not fired or
// been stopped.
func (f *FakeClock) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeLocked()
}

func (f *FakeClock) addLocked(timer *fakeTimer) {
	f.pending = append(f.pending, timer)
	f.changed.Broadcast()
}

// nextDueLocked returns the active timer with the earliest deadline
// at or before target, or nil.
func (f *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	var next *fakeTimer
	for _, timer := range f.pending {
		if timer.stopped || timer.deadline.After(target) {
			continue
		}
		if next == nil || timer.deadline.Before(next.deadline) {
			next = timer
		}
	}
	return next
}

func (f *FakeClock) compactLocked() {
	f.pending = slices.DeleteFunc(f.pending, func(timer *fakeTimer) bool {
		return timer.stopped
	})
}

func (f *FakeClock) activeLocked() int {
	count := 0
	for _, timer := range f.pending {
		if !timer.stopped {
			count++
		}
	}
	return count
}

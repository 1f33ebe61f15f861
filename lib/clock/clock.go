// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package used by this module.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. A non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker firing every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C until Stop is called. C has capacity 1;
// ticks a slow consumer misses are dropped, as with time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. It does not close C.
func (t *Ticker) Stop() { t.stop() }

// Sleep blocks until d has elapsed on c or done is closed. It reports
// whether the full duration elapsed.
func Sleep(c Clock, d time.Duration, done <-chan struct{}) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-c.After(d):
		return true
	case <-done:
		return false
	}
}

// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock time so that periodic work can be
// driven deterministically in tests.
//
// Components that schedule anything (the event log flush task, the
// update poller, request backoff in the platform client) take a Clock
// in their config struct. Production wiring passes Real(); tests pass a
// FakeClock and move time forward explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	task.Start(ctx)
//	fake.WaitForTimers(1)     // the task has registered its ticker
//	fake.Advance(time.Minute) // exactly one tick is delivered
//
// WaitForTimers closes the window between a goroutine registering a
// timer and the test advancing past it, which is what makes tests built
// on time.Sleep flaky.
package clock

// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] bound waits on channels with a
// real wall-clock timeout so that a broken test fails instead of
// hanging. They are the only place tests use real time; component
// timers are driven through lib/clock.FakeClock.
package testutil

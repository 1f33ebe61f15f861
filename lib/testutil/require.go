// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the part of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the
// test.
//
//	batch := testutil.RequireReceive(t, sink.sent, 5*time.Second, "waiting for batch")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireClosed waits for ch to be closed or to deliver a value within
// timeout, or fails the test.
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, formatMessage(msgAndArgs))
	}
}

// RequireNoReceive fails the test if ch delivers a value within wait.
// Use it sparingly: it always costs wait.
func RequireNoReceive[T any](t TB, ch <-chan T, wait time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v: %s", v, formatMessage(msgAndArgs))
	case <-time.After(wait):
	}
}

func formatMessage(msgAndArgs []any) string {
	switch len(msgAndArgs) {
	case 0:
		return "(no message)"
	case 1:
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}

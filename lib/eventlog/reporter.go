// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Appender is the part of Buffer the reporter needs.
type Appender interface {
	Append(ctx context.Context, record Record) error
}

// StackTracer is implemented by errors that carry the stack they were
// created on.
type StackTracer interface {
	StackTrace() string
}

// Reporter turns unhandled errors from command handlers into error
// records.
type Reporter struct {
	appender Appender
	ignore   func(error) bool
}

// NewReporter returns a Reporter appending to appender. Errors for
// which ignore returns true are dropped; ignore may be nil.
func NewReporter(appender Appender, ignore func(error) bool) *Reporter {
	return &Reporter{appender: appender, ignore: ignore}
}

// IgnoreErrors returns a predicate matching any error whose chain
// contains one of targets.
func IgnoreErrors(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// Report records err at SeverityError, which flushes immediately. It
// returns the flush error, or nil when err is nil or ignored.
func (r *Reporter) Report(ctx context.Context, err error, origin *Origin) error {
	if err == nil || (r.ignore != nil && r.ignore(err)) {
		return nil
	}
	return r.appender.Append(ctx, Record{
		Severity: SeverityError,
		Error:    Capture(err),
		Origin:   origin,
	})
}

// ReportPanic records a recovered panic at SeverityCritical. stack is
// the output of debug.Stack taken in the deferred recover.
func (r *Reporter) ReportPanic(ctx context.Context, recovered any, stack []byte, origin *Origin) error {
	detail := &ErrorDetail{Class: "panic", Message: fmt.Sprint(recovered), Stack: string(stack)}
	if err, ok := recovered.(error); ok {
		detail.Class = "panic " + className(err)
	}
	return r.appender.Append(ctx, Record{
		Severity: SeverityCritical,
		Error:    detail,
		Origin:   origin,
	})
}

// Capture describes err. The class is the type of the first error
// under any fmt.Errorf wrapping. The stack comes from the first error in the chain that
// carries one, or else the caller's stack.
func Capture(err error) *ErrorDetail {
	detail := &ErrorDetail{Class: className(err), Message: err.Error()}
	var tracer StackTracer
	if errors.As(err, &tracer) {
		detail.Stack = tracer.StackTrace()
	} else {
		detail.Stack = string(debug.Stack())
	}
	return detail
}

// className names the first error in the chain that is not a plain
// fmt.Errorf wrapper.
func className(err error) string {
	for {
		name := fmt.Sprintf("%T", err)
		next := errors.Unwrap(err)
		if next == nil || !strings.HasPrefix(name, "*fmt.wrapError") {
			return name
		}
		err = next
	}
}

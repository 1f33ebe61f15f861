// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is implemented by errors that choose their exit status.
type ExitCoder interface {
	ExitCode() int
}

// Fatal reports err on stderr and exits. Use it in main for errors
// returned by run, where the logger may not be initialized.
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report writes "error: err" to w and returns the exit status for err:
// the code of an ExitCoder in its chain, else 1. A nil err returns 0.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "error: %v\n", err)
	var coder ExitCoder
	if errors.As(err, &coder) && coder.ExitCode() > 0 {
		return coder.ExitCode()
	}
	return 1
}

// ExitError attaches an exit status to an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns Code.
func (e *ExitError) ExitCode() int { return e.Code }

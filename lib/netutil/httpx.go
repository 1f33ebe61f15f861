// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response reads and classifies transport
// errors for the platform and content-source clients.
package netutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

// MaxResponseSize bounds JSON response body reads. Every response the
// agent consumes is a few kilobytes.
const MaxResponseSize int64 = 8 << 20

// maxErrorBody bounds the body excerpt quoted in error messages.
const maxErrorBody = 512

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a bounded response body and JSON-decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns a short excerpt of an error response for
// diagnostics. Read errors are ignored.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody+1))
	if len(data) > maxErrorBody {
		return string(data[:maxErrorBody]) + "..."
	}
	return string(data)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNetworkError reports whether err came from the transport rather
// than from a decoded response: dial failures, resets, timeouts.
func IsNetworkError(err error) bool {
	if IsTimeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

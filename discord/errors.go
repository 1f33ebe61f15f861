// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rocketbot/rocket/lib/netutil"
)

// APIError is a non-2xx response from the platform.
//
//	var apiErr *APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden { ... }
type APIError struct {
	// Code is the platform's JSON error code, zero when the response
	// carried none (for example a proxy's HTML error page).
	Code    int    `json:"code"`
	Message string `json:"message"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
	// RetryAfter is set on 429 responses.
	RetryAfter time.Duration `json:"-"`
	// Global marks a 429 that applies to the whole bot rather than
	// one route.
	Global bool `json:"global"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("discord: %d (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("discord: HTTP %d: %s", e.StatusCode, e.Message)
}

// Platform JSON error codes the agent reacts to.
const (
	ErrCodeUnknownChannel     = 10003
	ErrCodeUnknownMessage     = 10008
	ErrCodeUnknownUser        = 10013
	ErrCodeUnknownWebhook     = 10015
	ErrCodeMissingAccess      = 50001
	ErrCodeCannotMessageUser  = 50007
	ErrCodeMissingPermissions = 50013
	ErrCodeInvalidFormBody    = 50035
)

// IsAPIError reports whether err is an *APIError with the given code.
func IsAPIError(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsTransient reports whether err may succeed if retried later: rate
// limiting, server errors, timeouts and transport failures.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return netutil.IsNetworkError(err)
}

// IsDeliveryRefused reports whether the recipient or channel refuses
// the message: blocked direct messages, missing access, or a forbidden
// response. These are permanent for the target and are skipped rather
// than retried.
func IsDeliveryRefused(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case ErrCodeCannotMessageUser, ErrCodeMissingAccess, ErrCodeMissingPermissions, ErrCodeUnknownUser:
		return true
	}
	return apiErr.StatusCode == http.StatusForbidden
}

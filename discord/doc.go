// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package discord is a minimal REST client for the chat platform: just
// the endpoints the agent's background tasks need.
//
//   - [Client.CreateDM] and [Client.CreateMessage] deliver private
//     notifications. [DirectMessenger] wraps them so that callers name
//     only the recipient; the direct channel is opened on first use
//     and reused afterwards.
//   - [Client.GetWebhook] and [Client.ExecuteWebhook] feed the
//     telemetry log channel.
//
// Every request waits on a shared token-bucket limiter sized below the
// platform's global rate limit. Rate-limited (429), server-error (5xx)
// and network failures are retried a bounded number of times inside
// the request, sleeping for the server's retry_after or a doubling
// backoff on the injected clock. Failures beyond that are returned to
// the caller, whose next scheduled cycle is the outer retry.
//
// Error responses decode into [*APIError]; use [IsAPIError] to branch
// on platform error codes and [IsTransient] to tell retryable failures
// from permanent ones.
package discord

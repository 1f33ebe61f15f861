// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventlog buffers operator-facing telemetry records and
// delivers them in batches to a remote sink.
//
// Records accumulate in a [Buffer] in append order. A flush sends the
// buffered records to the [Sink] in chunks of at most ten, in order,
// and drops each chunk from the buffer only after the sink accepted
// it. A failed chunk stops the flush and leaves it (and everything
// after it) buffered for the next attempt, so delivery is
// at-least-once: a chunk the sink half-accepted may be sent again.
//
// Flushes happen on three triggers, all through [Buffer.Flush]:
//
//   - a periodic task (one minute by default, see [Buffer.NewFlushTask]),
//   - an Append that brings the buffer to the flush threshold,
//   - an Append of a record at [SeverityError] or above.
//
// Flushes are serialized. Appends never wait for a flush they did not
// trigger.
//
// Delivery failures are reported to the caller and logged through
// slog. They never produce new records, so a broken sink cannot feed
// itself.
package eventlog

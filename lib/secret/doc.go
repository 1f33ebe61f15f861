// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds credentials (the bot token, the log webhook
// token) in memory mapped outside the Go heap.
//
// A [Buffer] is an anonymous mmap region excluded from core dumps and,
// where the process is allowed to, locked against swap. Close zeroes
// and unmaps it. Buffers render as "[redacted]" in fmt and slog output
// so a token can be passed around without leaking into logs.
package secret

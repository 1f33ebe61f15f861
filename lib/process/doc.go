// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for rocket binaries: the
// raw stderr output that happens before the structured logger exists
// or after it can no longer be trusted.
package process

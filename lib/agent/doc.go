// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent owns the telemetry and catch-up subsystem of one bot
// process.
//
// [New] receives every collaborator explicitly: the chat platform
// client, the content source, the durable store. It builds the event
// buffer, the subscription cache, the dispatcher, and the poller on
// top of them. The command layer talks only to the [Agent]: it logs
// events, reports errors, reads and changes a subscriber's opt-in,
// and triggers a poll.
//
// Lifecycle:
//
//   - [Agent.Start] requeues spooled records, resolves the log
//     webhook, loads the cursor, starts the flush and poll tasks, and
//     fires [Hooks.OnReady].
//   - [Agent.Stop] stops the poll task, then the flush task, drains
//     the buffer once more, spools whatever could not be delivered,
//     and persists pending subscription changes.
//
// The store and HTTP transports belong to the caller and are closed
// after Stop returns.
package agent

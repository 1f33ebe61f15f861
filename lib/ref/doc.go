// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides the identity type shared by the chat platform
// client, the durable store, and the notification path.
//
// Every platform object (users, channels, guilds, messages, webhooks)
// is named by a Snowflake: a 64-bit integer whose high bits encode the
// creation time. The platform transports snowflakes as decimal strings
// in JSON; the store keeps them as INTEGER columns.
package ref

// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package catchup notices new comics and tells opted-in subscribers
// about each one.
//
// A [Poller] keeps the cursor: the number of the newest comic already
// reconciled. Each [Poller.Poll] asks the content source for its
// latest number and, when it is ahead of the cursor, hands the range
// (cursor, latest] to the [Dispatcher], then saves the new cursor and
// flushes pending subscription changes. Scheduled and manual polls
// run the same method, one at a time.
//
// The [Dispatcher] walks a range in ascending order. For every item it
// fetches the summary and sends one direct message to each opted-in
// subscriber, waiting for all of an item's deliveries before starting
// the next item, so every subscriber sees items in order. A failed
// delivery skips that subscriber for that item. A failed fetch skips
// the item.
package catchup

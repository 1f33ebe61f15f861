// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"context"
	"sync"

	"github.com/rocketbot/rocket/lib/ref"
)

// DirectMessenger sends private messages by recipient identity alone.
// It needs no member directory or guild membership: the direct channel
// is opened from the user id on first use and cached for the life of
// the process.
type DirectMessenger struct {
	client *Client

	mu       sync.Mutex
	channels map[ref.Snowflake]ref.Snowflake
}

// NewDirectMessenger returns a DirectMessenger using client.
func NewDirectMessenger(client *Client) *DirectMessenger {
	return &DirectMessenger{
		client:   client,
		channels: make(map[ref.Snowflake]ref.Snowflake),
	}
}

// Channel returns the direct channel with recipient, opening it if it
// is not cached.
func (d *DirectMessenger) Channel(ctx context.Context, recipient ref.Snowflake) (ref.Snowflake, error) {
	d.mu.Lock()
	channel, ok := d.channels[recipient]
	d.mu.Unlock()
	if ok {
		return channel, nil
	}

	opened, err := d.client.CreateDM(ctx, recipient)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.channels[recipient] = opened.ID
	d.mu.Unlock()
	return opened.ID, nil
}

// Send delivers message to recipient's direct channel. A cached
// channel the platform no longer knows is dropped and reopened once.
func (d *DirectMessenger) Send(ctx context.Context, recipient ref.Snowflake, message MessageCreate) (*Message, error) {
	channel, err := d.Channel(ctx, recipient)
	if err != nil {
		return nil, err
	}

	sent, err := d.client.CreateMessage(ctx, channel, message)
	if !IsAPIError(err, ErrCodeUnknownChannel) {
		return sent, err
	}

	d.forget(recipient, channel)
	channel, err = d.Channel(ctx, recipient)
	if err != nil {
		return nil, err
	}
	return d.client.CreateMessage(ctx, channel, message)
}

// forget drops recipient's cached channel if it is still stale.
func (d *DirectMessenger) forget(recipient, stale ref.Snowflake) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.channels[recipient] == stale {
		delete(d.channels, recipient)
	}
}

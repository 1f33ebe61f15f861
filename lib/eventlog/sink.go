// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"fmt"

	"github.com/rocketbot/rocket/discord"
	"github.com/rocketbot/rocket/lib/ref"
)

// Sender is the display identity a batch is posted under.
type Sender struct {
	Name    string
	IconURL string
}

// Sink accepts batches of one to ten records. A nil error means the
// whole batch was accepted.
type Sink interface {
	Send(ctx context.Context, batch []Record, sender Sender) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, batch []Record, sender Sender) error

func (f SinkFunc) Send(ctx context.Context, batch []Record, sender Sender) error {
	return f(ctx, batch, sender)
}

// WebhookExecutor posts a message through a webhook.
// *discord.Client implements it.
type WebhookExecutor interface {
	ExecuteWebhook(ctx context.Context, id ref.Snowflake, token string, message discord.WebhookMessage) error
}

// WebhookSink renders each record as an embed and posts the batch
// through a log webhook.
type WebhookSink struct {
	executor WebhookExecutor
	id       ref.Snowflake
	token    string
}

// NewWebhookSink returns a sink posting to webhook id with token.
func NewWebhookSink(executor WebhookExecutor, id ref.Snowflake, token string) (*WebhookSink, error) {
	if executor == nil {
		return nil, fmt.Errorf("eventlog: webhook executor is required")
	}
	if id.IsZero() {
		return nil, fmt.Errorf("eventlog: webhook id is required")
	}
	if token == "" {
		return nil, fmt.Errorf("eventlog: webhook %s: token is required", id)
	}
	return &WebhookSink{executor: executor, id: id, token: token}, nil
}

// Send posts the batch. Records whose embeds together exceed the
// platform's per-message character budget go out as several messages,
// in order; any failure fails the whole batch.
func (s *WebhookSink) Send(ctx context.Context, batch []Record, sender Sender) error {
	if len(batch) == 0 {
		return nil
	}
	if len(batch) > discord.MaxEmbedsPerMessage {
		return fmt.Errorf("eventlog: batch of %d records exceeds the limit of %d", len(batch), discord.MaxEmbedsPerMessage)
	}
	for _, embeds := range packEmbeds(RenderAll(batch)) {
		message := discord.WebhookMessage{
			Username:        sender.Name,
			AvatarURL:       sender.IconURL,
			Embeds:          embeds,
			AllowedMentions: discord.NoMentions(),
		}
		if err := s.executor.ExecuteWebhook(ctx, s.id, s.token, message); err != nil {
			return err
		}
	}
	return nil
}

// packEmbeds groups embeds, in order, into messages that stay within
// the per-message character budget.
func packEmbeds(embeds []discord.Embed) [][]discord.Embed {
	var messages [][]discord.Embed
	var current []discord.Embed
	size := 0
	for _, embed := range embeds {
		length := embed.Length()
		if len(current) > 0 && size+length > discord.MaxEmbedTotalChars {
			messages = append(messages, current)
			current, size = nil, 0
		}
		current = append(current, embed)
		size += length
	}
	if len(current) > 0 {
		messages = append(messages, current)
	}
	return messages
}

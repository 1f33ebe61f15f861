// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import "github.com/rocketbot/rocket/lib/ref"

// ChannelType is the platform's channel kind.
type ChannelType int

// ChannelTypeDM is a private channel between the bot and one user.
const ChannelTypeDM ChannelType = 1

// User is the subset of the user object the agent reads.
type User struct {
	ID         ref.Snowflake `json:"id"`
	Username   string        `json:"username"`
	GlobalName string        `json:"global_name,omitempty"`
	Avatar     string        `json:"avatar,omitempty"`
}

// DisplayName prefers the global display name over the username.
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Channel is the subset of the channel object the agent reads.
type Channel struct {
	ID         ref.Snowflake `json:"id"`
	Type       ChannelType   `json:"type"`
	Recipients []User        `json:"recipients,omitempty"`
}

// Message is a created message.
type Message struct {
	ID        ref.Snowflake `json:"id"`
	ChannelID ref.Snowflake `json:"channel_id"`
	Content   string        `json:"content"`
	Embeds    []Embed       `json:"embeds,omitempty"`
}

// AllowedMentions restricts which mentions in content notify anyone.
// An empty, non-nil Parse suppresses all pings.
type AllowedMentions struct {
	Parse []string `json:"parse"`
}

// NoMentions suppresses every mention in a message.
func NoMentions() *AllowedMentions { return &AllowedMentions{Parse: []string{}} }

// MessageCreate is the body of a create-message request.
type MessageCreate struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
	// Nonce, with EnforceNonce, makes the platform return the existing
	// message instead of posting a duplicate when the same nonce is
	// sent again within a few minutes. At most 25 characters.
	Nonce           string           `json:"nonce,omitempty"`
	EnforceNonce    bool             `json:"enforce_nonce,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
}

// Webhook is the subset of the webhook object the agent reads.
type Webhook struct {
	ID        ref.Snowflake `json:"id"`
	Type      int           `json:"type"`
	Name      string        `json:"name,omitempty"`
	ChannelID ref.Snowflake `json:"channel_id,omitempty"`
	GuildID   ref.Snowflake `json:"guild_id,omitempty"`
	// Token is present only when fetched with a bot token that can
	// manage the webhook.
	Token string `json:"token,omitempty"`
}

// WebhookMessage is the body of an execute-webhook request.
type WebhookMessage struct {
	Content         string           `json:"content,omitempty"`
	Username        string           `json:"username,omitempty"`
	AvatarURL       string           `json:"avatar_url,omitempty"`
	Embeds          []Embed          `json:"embeds,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
}

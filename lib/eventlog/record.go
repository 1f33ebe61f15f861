// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/rocketbot/rocket/lib/ref"
)

// Severity orders records by urgency.
type Severity int8

const (
	SeverityTrace Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = [...]string{
	SeverityTrace:    "trace",
	SeverityInfo:     "info",
	SeverityWarning:  "warning",
	SeverityError:    "error",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if s < SeverityTrace || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", s)
	}
	return severityNames[s]
}

// Urgent reports whether a record at s is flushed as soon as it is
// appended.
func (s Severity) Urgent() bool { return s >= SeverityError }

// ParseSeverity accepts the lowercase names printed by String, plus
// "debug" and "warn".
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return SeverityTrace, nil
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	}
	return 0, fmt.Errorf("eventlog: unknown severity %q", name)
}

// Actor identifies who caused an event.
type Actor struct {
	ID        ref.Snowflake `cbor:"id"`
	Name      string        `cbor:"name,omitempty"`
	AvatarURL string        `cbor:"avatar_url,omitempty"`
}

// Origin is the chat context an event came from. A zero GuildID means
// the message was a direct message.
type Origin struct {
	Actor       Actor         `cbor:"actor"`
	MessageID   ref.Snowflake `cbor:"message_id,omitempty"`
	JumpURL     string        `cbor:"jump_url,omitempty"`
	ChannelID   ref.Snowflake `cbor:"channel_id,omitempty"`
	ChannelName string        `cbor:"channel_name,omitempty"`
	GuildID     ref.Snowflake `cbor:"guild_id,omitempty"`
	GuildName   string        `cbor:"guild_name,omitempty"`
	// Content is the triggering message text. Rendering keeps the
	// first MaxContent characters.
	Content string `cbor:"content,omitempty"`
}

// DirectMessage reports whether the origin is a private channel.
func (o Origin) DirectMessage() bool { return o.GuildID.IsZero() }

// MaxContent is how much of Origin.Content is rendered.
const MaxContent = 1000

// ErrorDetail is a captured error.
type ErrorDetail struct {
	// Class is the error's type name.
	Class   string `cbor:"class"`
	Message string `cbor:"message,omitempty"`
	Stack   string `cbor:"stack,omitempty"`
}

// Record is one telemetry entry. Records are values; nothing in this
// package modifies a record after Append.
type Record struct {
	// ID is assigned by Append when zero.
	ID xid.ID `cbor:"id"`
	// Time is assigned by Append when zero.
	Time     time.Time    `cbor:"time"`
	Severity Severity     `cbor:"severity"`
	Title    string       `cbor:"title,omitempty"`
	Body     string       `cbor:"body,omitempty"`
	Error    *ErrorDetail `cbor:"error,omitempty"`
	Origin   *Origin      `cbor:"origin,omitempty"`
}

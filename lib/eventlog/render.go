// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rocketbot/rocket/discord"
)

// Colors by severity.
var severityColors = [...]int{
	SeverityTrace:    0x7f7f7f,
	SeverityInfo:     0x69a9bc,
	SeverityWarning:  0xe09138,
	SeverityError:    0xf75d2a,
	SeverityCritical: 0xc10508,
}

// Color is the embed color for s.
func (s Severity) Color() int {
	if s < SeverityTrace || s > SeverityCritical {
		return severityColors[SeverityTrace]
	}
	return severityColors[s]
}

const (
	uncaughtTitle = "Uncaught exception"
	fence         = "```"
	// Traceback chunks sit in a fenced block inside one field value.
	tracebackChunk = discord.MaxEmbedFieldValue - 2*len(fence) - 2
)

// RenderAll renders a batch, one embed per record.
func RenderAll(batch []Record) []discord.Embed {
	embeds := make([]discord.Embed, len(batch))
	for i, record := range batch {
		embeds[i] = Render(record)
	}
	return embeds
}

// Render builds the embed for one record. The result always passes
// discord.Embed.Validate: long text is cut, the description gives way
// to the fields, and traceback chunks that would overflow the embed
// budget are dropped.
func Render(record Record) discord.Embed {
	stamp := record.Time.UTC()
	embed := discord.Embed{
		Title:       discord.Truncate(record.Title, discord.MaxEmbedTitle),
		Description: discord.Truncate(record.Body, discord.MaxEmbedDescription),
		Color:       record.Severity.Color(),
		Footer:      &discord.EmbedFooter{Text: record.Severity.String() + " | " + record.ID.String()},
	}
	if !stamp.IsZero() {
		embed.Timestamp = &stamp
	}
	if embed.Title == "" && record.Error != nil {
		embed.Title = uncaughtTitle
	}

	if origin := record.Origin; origin != nil {
		embed.Author = &discord.EmbedAuthor{
			Name:    discord.Truncate(strings.TrimSpace(origin.Actor.Name+" "+origin.Actor.ID.String()), discord.MaxEmbedAuthorName),
			IconURL: origin.Actor.AvatarURL,
		}
		embed.Fields = append(embed.Fields,
			discord.EmbedField{Name: "Context", Value: discord.Truncate(contextText(origin), discord.MaxEmbedFieldValue)},
			discord.EmbedField{Name: "Message contents", Value: contentSpan(origin.Content)},
		)
	}

	if detail := record.Error; detail != nil {
		exception := detail.Class
		if detail.Message != "" {
			exception += ": " + detail.Message
		}
		if exception == "" {
			exception = "(unknown error)"
		}
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name:  "Exception",
			Value: discord.Truncate(exception, discord.MaxEmbedFieldValue),
		})
	}
	fitDescription(&embed)
	if record.Error != nil {
		addTraceback(&embed, record.Error.Stack)
	}
	return embed
}

// fitDescription shortens the description until the embed is within
// its total budget.
func fitDescription(embed *discord.Embed) {
	over := embed.Length() - discord.MaxEmbedTotalChars
	if over <= 0 {
		return
	}
	keep := utf8.RuneCountInString(embed.Description) - over
	embed.Description = discord.Truncate(embed.Description, max(keep, 0))
}

func contextText(origin *Origin) string {
	var text strings.Builder
	if !origin.MessageID.IsZero() {
		fmt.Fprintf(&text, "Message: %s\n", origin.MessageID)
	}
	if origin.JumpURL != "" {
		fmt.Fprintf(&text, "[Jump link](%s)\n", origin.JumpURL)
	}
	if origin.DirectMessage() {
		text.WriteString("(Direct message)")
	} else {
		fmt.Fprintf(&text, "Channel: %s %s\n", origin.ChannelName, origin.ChannelID)
		fmt.Fprintf(&text, "Guild: %s %s", origin.GuildName, origin.GuildID)
	}
	return text.String()
}

// contentSpan shows message text in a code span. Backticks in the
// text would end the span early, so they are swapped for a
// look-alike.
func contentSpan(content string) string {
	runes := []rune(content)
	if len(runes) > MaxContent {
		runes = runes[:MaxContent]
	}
	return "`" + strings.ReplaceAll(string(runes), "`", "ˋ") + "`"
}

// addTraceback appends one field per stack chunk while the embed
// stays within its total budget.
func addTraceback(embed *discord.Embed, stack string) {
	stack = strings.TrimRight(stack, "\n")
	if stack == "" {
		return
	}
	chunks := discord.Chunk(strings.ReplaceAll(stack, fence, "'''"), tracebackChunk)
	for i, chunk := range chunks {
		if len(embed.Fields) == discord.MaxEmbedFields {
			return
		}
		name := "Traceback"
		if i > 0 {
			name = "Traceback (cont.)"
		}
		value := fence + "\n" + chunk + "\n" + fence
		if embed.Length()+utf8.RuneCountInString(name)+utf8.RuneCountInString(value) > discord.MaxEmbedTotalChars {
			return
		}
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: name, Value: value})
	}
}

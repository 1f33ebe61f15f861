// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Embed limits enforced by the platform. Lengths count characters,
// not bytes.
const (
	MaxEmbedsPerMessage   = 10
	MaxEmbedTitle         = 256
	MaxEmbedDescription   = 4096
	MaxEmbedFields        = 25
	MaxEmbedFieldName     = 256
	MaxEmbedFieldValue    = 1024
	MaxEmbedFooterText    = 2048
	MaxEmbedAuthorName    = 256
	MaxEmbedTotalChars    = 6000
	MaxMessageContentSize = 2000
)

// Embed is a rich message attachment.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   *time.Time   `json:"timestamp,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Image       *EmbedMedia  `json:"image,omitempty"`
	Thumbnail   *EmbedMedia  `json:"thumbnail,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// EmbedAuthor is the line above the title.
type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedFooter is the line below the body.
type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedMedia is an image or thumbnail reference.
type EmbedMedia struct {
	URL string `json:"url"`
}

// EmbedField is one name/value pair.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Length is the character count the platform applies its 6000-character
// per-embed budget to.
func (e Embed) Length() int {
	total := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
	if e.Author != nil {
		total += utf8.RuneCountInString(e.Author.Name)
	}
	if e.Footer != nil {
		total += utf8.RuneCountInString(e.Footer.Text)
	}
	for _, field := range e.Fields {
		total += utf8.RuneCountInString(field.Name) + utf8.RuneCountInString(field.Value)
	}
	return total
}

// Validate checks e against the platform's limits.
func (e Embed) Validate() error {
	var errs []error
	check := func(what, value string, limit int) {
		if count := utf8.RuneCountInString(value); count > limit {
			errs = append(errs, fmt.Errorf("%s is %d characters, limit %d", what, count, limit))
		}
	}
	check("title", e.Title, MaxEmbedTitle)
	check("description", e.Description, MaxEmbedDescription)
	if e.Author != nil {
		check("author name", e.Author.Name, MaxEmbedAuthorName)
	}
	if e.Footer != nil {
		check("footer", e.Footer.Text, MaxEmbedFooterText)
	}
	if len(e.Fields) > MaxEmbedFields {
		errs = append(errs, fmt.Errorf("%d fields, limit %d", len(e.Fields), MaxEmbedFields))
	}
	for index, field := range e.Fields {
		if field.Name == "" || field.Value == "" {
			errs = append(errs, fmt.Errorf("field %d has an empty name or value", index))
		}
		check(fmt.Sprintf("field %d name", index), field.Name, MaxEmbedFieldName)
		check(fmt.Sprintf("field %d value", index), field.Value, MaxEmbedFieldValue)
	}
	if length := e.Length(); length > MaxEmbedTotalChars {
		errs = append(errs, fmt.Errorf("embed totals %d characters, limit %d", length, MaxEmbedTotalChars))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("discord: invalid embed: %w", err)
	}
	return nil
}

// Truncate shortens s to at most limit characters, marking the cut
// with an ellipsis.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 1 {
		return string([]rune(s)[:max(limit, 0)])
	}
	return string([]rune(s)[:limit-1]) + "…"
}

// Chunk splits s into pieces of at most size characters each. An empty
// string yields no chunks.
func Chunk(s string, size int) []string {
	if size <= 0 {
		panic("discord: non-positive chunk size")
	}
	runes := []rune(s)
	var chunks []string
	for len(runes) > 0 {
		end := min(size, len(runes))
		chunks = append(chunks, string(runes[:end]))
		runes = runes[end:]
	}
	return chunks
}

// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the process logger.
//
// Components never construct loggers themselves: each takes a
// *slog.Logger in its config struct and falls back to a discard
// logger. The binary builds one logger here and scopes it per
// component with With("component", ...).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Options configure New.
type Options struct {
	// Output defaults to os.Stderr.
	Output io.Writer
	// Level is a slog level name: debug, info, warn, error.
	Level string
	// Format is "auto", "text", or "json". Auto picks text when Output
	// is a terminal and JSON otherwise.
	Format string
}

// New builds a logger from opts.
func New(opts Options) (*slog.Logger, error) {
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("logging: unknown level %q", opts.Level)
		}
	}
	handlerOptions := &slog.HandlerOptions{Level: level}

	format := opts.Format
	if format == "" || format == "auto" {
		format = "json"
		if isTerminal(output) {
			format = "text"
		}
	}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(output, handlerOptions)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(output, handlerOptions)), nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}
}

// OrDiscard returns logger, or a logger that drops everything when
// logger is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

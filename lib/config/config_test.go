// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rocketbot/rocket/lib/ref"
)

const minimal = `
discord:
  token: ${ROCKET_TEST_TOKEN}
log_webhook:
  id: "112233445566778899"
`

func TestParseMergesOverDefaults(t *testing.T) {
	t.Setenv("ROCKET_TEST_TOKEN", "abc")

	cfg, err := Parse([]byte(minimal + `
xkcd:
  poll_interval: 1h
notifications:
  persistence: write_through
  color: 0x112233
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Discord.Token != "abc" {
		t.Errorf("Discord.Token = %q, want expanded abc", cfg.Discord.Token)
	}
	if cfg.XKCD.PollInterval != time.Hour {
		t.Errorf("XKCD.PollInterval = %v, want 1h", cfg.XKCD.PollInterval)
	}
	if cfg.Notifications.Persistence != WriteThrough {
		t.Errorf("Persistence = %q, want write_through", cfg.Notifications.Persistence)
	}
	if cfg.Notifications.Color != 0x112233 {
		t.Errorf("Color = %#x, want 0x112233", cfg.Notifications.Color)
	}

	// Untouched sections keep their defaults.
	if cfg.EventLog.FlushInterval != time.Minute || cfg.EventLog.BatchSize != 10 {
		t.Errorf("EventLog = %+v, want defaults", cfg.EventLog)
	}
	if cfg.XKCD.MinimumCursor != 1 {
		t.Errorf("MinimumCursor = %d, want 1", cfg.XKCD.MinimumCursor)
	}

	id, err := cfg.WebhookID()
	if err != nil || id != ref.Snowflake(112233445566778899) {
		t.Errorf("WebhookID() = %v, %v", id, err)
	}
}

func TestExpandVarsDefault(t *testing.T) {
	t.Setenv("ROCKET_TEST_SET", "value")
	tests := map[string]string{
		"${ROCKET_TEST_SET}":                "value",
		"${ROCKET_TEST_UNSET:-fallback}":    "fallback",
		"${ROCKET_TEST_UNSET}":              "",
		"/var/lib/${ROCKET_TEST_SET}/spool": "/var/lib/value/spool",
		"plain":                             "plain",
	}
	for input, want := range tests {
		if got := expandVars(input); got != want {
			t.Errorf("expandVars(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte("discord:\n  tokne: typo\n")); err == nil {
		t.Error("Parse accepted an unknown field")
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Database.Path != "rocket.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.EventLog.BatchSize = 11
	cfg.Notifications.Persistence = "sometimes"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{
		"discord.token",
		"log_webhook.id",
		"event_log.batch_size",
		"notifications.persistence",
		"log.level",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error missing %q:\n%v", want, err)
		}
	}
}

func TestLoadRequiresEnv(t *testing.T) {
	t.Setenv(EnvVar, "")
	if _, err := Load(); err == nil {
		t.Error("Load succeeded without ROCKET_CONFIG")
	}

	path := filepath.Join(t.TempDir(), "rocket.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, path)
	t.Setenv("ROCKET_TEST_TOKEN", "from-env")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "from-env" {
		t.Errorf("Discord.Token = %q", cfg.Discord.Token)
	}
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel accepted an unknown level")
	}
}

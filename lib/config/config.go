// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rocketbot/rocket/lib/ref"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "ROCKET_CONFIG"

// Persistence selects when subscription changes reach the store.
type Persistence string

const (
	// WriteThrough upserts each change as it is made.
	WriteThrough Persistence = "write_through"
	// WriteBack holds changes in memory until the next poll cycle.
	WriteBack Persistence = "write_back"
)

// Config is the complete agent configuration.
type Config struct {
	Discord       DiscordConfig       `yaml:"discord"`
	LogWebhook    WebhookConfig       `yaml:"log_webhook"`
	EventLog      EventLogConfig      `yaml:"event_log"`
	XKCD          XKCDConfig          `yaml:"xkcd"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// DiscordConfig is the chat platform connection.
type DiscordConfig struct {
	APIURL string `yaml:"api_url"`
	// Token is the bot token, usually ${ROCKET_TOKEN}.
	Token string `yaml:"token"`
	// TokenFile is read when Token is empty.
	TokenFile         string        `yaml:"token_file"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	// MaxRetries bounds in-request retries of rate-limited and 5xx
	// responses. Anything beyond is left to the next scheduled cycle.
	MaxRetries int `yaml:"max_retries"`
}

// WebhookConfig is the telemetry webhook.
type WebhookConfig struct {
	ID string `yaml:"id"`
	// Token may be empty, in which case it is fetched with the bot
	// token on startup.
	Token     string `yaml:"token"`
	Username  string `yaml:"username"`
	AvatarURL string `yaml:"avatar_url"`
}

// EventLogConfig tunes the telemetry buffer.
type EventLogConfig struct {
	FlushInterval  time.Duration `yaml:"flush_interval"`
	FlushThreshold int           `yaml:"flush_threshold"`
	BatchSize      int           `yaml:"batch_size"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	// SpoolPath, if set, receives records still unsent at shutdown.
	SpoolPath string `yaml:"spool_path"`
}

// XKCDConfig is the content source and poll schedule.
type XKCDConfig struct {
	BaseURL        string        `yaml:"base_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MinimumCursor  int           `yaml:"minimum_cursor"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// NotificationsConfig tunes subscriber delivery.
type NotificationsConfig struct {
	Persistence     Persistence   `yaml:"persistence"`
	Concurrency     int           `yaml:"concurrency"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	Color           int           `yaml:"color"`
}

// DatabaseConfig is the durable store.
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

// LogConfig is process logging.
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "auto" (text on a terminal, JSON otherwise), "text",
	// or "json".
	Format string `yaml:"format"`
}

// MetricsConfig is OpenTelemetry export. An empty endpoint disables
// export; instruments still record into a no-op provider.
type MetricsConfig struct {
	OTLPEndpoint string        `yaml:"otlp_endpoint"`
	Interval     time.Duration `yaml:"interval"`
}

// Default returns the configuration used as the base for every file.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{
			APIURL:            "https://discord.com/api/v10",
			RequestsPerSecond: 40,
			RequestTimeout:    10 * time.Second,
			MaxRetries:        2,
		},
		LogWebhook: WebhookConfig{
			Username: "Rocket",
		},
		EventLog: EventLogConfig{
			FlushInterval:  time.Minute,
			FlushThreshold: 10,
			BatchSize:      10,
			SendTimeout:    10 * time.Second,
		},
		XKCD: XKCDConfig{
			BaseURL:        "https://xkcd.com",
			PollInterval:   15 * time.Minute,
			MinimumCursor:  1,
			RequestTimeout: 10 * time.Second,
		},
		Notifications: NotificationsConfig{
			Persistence:     WriteBack,
			Concurrency:     4,
			DeliveryTimeout: 10 * time.Second,
			Color:           0xe0e0f0,
		},
		Database: DatabaseConfig{
			Path:     "rocket.db",
			PoolSize: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Metrics: MetricsConfig{
			Interval: 30 * time.Second,
		},
	}
}

// Load loads the file named by ROCKET_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("config: %s is not set; set it to the path of rocket.yaml or pass --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile merges the file at path over Default and expands
// environment references. It does not validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFile for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	for _, field := range []*string{
		&c.Discord.APIURL,
		&c.Discord.Token,
		&c.Discord.TokenFile,
		&c.LogWebhook.ID,
		&c.LogWebhook.Token,
		&c.LogWebhook.AvatarURL,
		&c.EventLog.SpoolPath,
		&c.XKCD.BaseURL,
		&c.Database.Path,
		&c.Metrics.OTLPEndpoint,
	} {
		*field = expandVars(*field)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default}. An unset or empty
// variable without a default expands to the empty string.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// WebhookID parses the log webhook id.
func (c *Config) WebhookID() (ref.Snowflake, error) {
	return ref.ParseSnowflake(strings.TrimSpace(c.LogWebhook.ID))
}

// Validate checks the configuration and reports all problems.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if err := validURL(c.Discord.APIURL); err != nil {
		add("discord.api_url: %w", err)
	}
	if c.Discord.Token == "" && c.Discord.TokenFile == "" {
		add("discord.token or discord.token_file is required")
	}
	if c.Discord.RequestsPerSecond <= 0 {
		add("discord.requests_per_second must be positive")
	}
	if c.Discord.RequestTimeout <= 0 {
		add("discord.request_timeout must be positive")
	}
	if c.Discord.MaxRetries < 0 {
		add("discord.max_retries must not be negative")
	}

	if _, err := c.WebhookID(); err != nil {
		add("log_webhook.id: %w", err)
	}

	if c.EventLog.FlushInterval <= 0 {
		add("event_log.flush_interval must be positive")
	}
	if c.EventLog.FlushThreshold < 1 {
		add("event_log.flush_threshold must be at least 1")
	}
	if c.EventLog.BatchSize < 1 || c.EventLog.BatchSize > 10 {
		add("event_log.batch_size must be between 1 and 10")
	}
	if c.EventLog.SendTimeout <= 0 {
		add("event_log.send_timeout must be positive")
	}

	if err := validURL(c.XKCD.BaseURL); err != nil {
		add("xkcd.base_url: %w", err)
	}
	if c.XKCD.PollInterval <= 0 {
		add("xkcd.poll_interval must be positive")
	}
	if c.XKCD.MinimumCursor < 0 {
		add("xkcd.minimum_cursor must not be negative")
	}
	if c.XKCD.RequestTimeout <= 0 {
		add("xkcd.request_timeout must be positive")
	}

	switch c.Notifications.Persistence {
	case WriteThrough, WriteBack:
	default:
		add("notifications.persistence must be %q or %q, got %q", WriteThrough, WriteBack, c.Notifications.Persistence)
	}
	if c.Notifications.Concurrency < 1 {
		add("notifications.concurrency must be at least 1")
	}
	if c.Notifications.DeliveryTimeout <= 0 {
		add("notifications.delivery_timeout must be positive")
	}
	if c.Notifications.Color < 0 || c.Notifications.Color > 0xffffff {
		add("notifications.color must be a 24-bit RGB value")
	}

	if c.Database.Path == "" {
		add("database.path is required")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		add("log.level: %w", err)
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		add("log.format must be auto, text, or json")
	}

	if c.Metrics.OTLPEndpoint != "" && c.Metrics.Interval <= 0 {
		add("metrics.interval must be positive when metrics.otlp_endpoint is set")
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown level %q", name)
	}
	return level, nil
}

func validURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

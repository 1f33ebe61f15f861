// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// rocket-agent runs the bot's telemetry and catch-up subsystem: it
// ships buffered event records to the log webhook and sends direct
// message notifications for new comics to opted-in users.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rocketbot/rocket/discord"
	"github.com/rocketbot/rocket/lib/agent"
	"github.com/rocketbot/rocket/lib/config"
	"github.com/rocketbot/rocket/lib/eventlog"
	"github.com/rocketbot/rocket/lib/logging"
	"github.com/rocketbot/rocket/lib/metrics"
	"github.com/rocketbot/rocket/lib/process"
	"github.com/rocketbot/rocket/lib/secret"
	"github.com/rocketbot/rocket/lib/store"
	"github.com/rocketbot/rocket/lib/subscription"
	"github.com/rocketbot/rocket/lib/version"
	"github.com/rocketbot/rocket/lib/xkcd"
)

// exitUsage is the status for bad flags or configuration.
const exitUsage = 2

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var showVersion, pollNow bool

	flagSet := pflag.NewFlagSet("rocket-agent", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to rocket.yaml (default: $"+config.EnvVar+")")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	flagSet.BoolVar(&pollNow, "poll-now", false, "run one catch-up poll cycle and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &process.ExitError{Code: exitUsage, Err: err}
	}
	if args := flagSet.Args(); len(args) > 0 {
		return &process.ExitError{Code: exitUsage, Err: fmt.Errorf("unexpected argument: %s", args[0])}
	}

	if showVersion {
		fmt.Printf("rocket-agent %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return &process.ExitError{Code: exitUsage, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return &process.ExitError{Code: exitUsage, Err: err}
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	instruments, shutdownMetrics, err := metrics.Setup(ctx, metrics.ExportConfig{
		Endpoint: cfg.Metrics.OTLPEndpoint,
		Interval: cfg.Metrics.Interval,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("flushing metrics failed", "error", err)
		}
	}()

	token, err := botToken(cfg.Discord)
	if err != nil {
		return err
	}
	defer token.Close()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	defer transport.CloseIdleConnections()
	httpClient := &http.Client{Transport: transport}

	platform, err := discord.NewClient(discord.ClientConfig{
		BaseURL:           cfg.Discord.APIURL,
		Token:             token,
		HTTPClient:        httpClient,
		RequestsPerSecond: cfg.Discord.RequestsPerSecond,
		RequestTimeout:    cfg.Discord.RequestTimeout,
		MaxRetries:        cfg.Discord.MaxRetries,
		Logger:            logger.With("component", "discord"),
	})
	if err != nil {
		return err
	}
	source, err := xkcd.NewClient(xkcd.Config{
		BaseURL:        cfg.XKCD.BaseURL,
		HTTPClient:     httpClient,
		RequestTimeout: cfg.XKCD.RequestTimeout,
		Logger:         logger.With("component", "xkcd"),
	})
	if err != nil {
		return err
	}

	durable, err := store.Open(ctx, store.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Logger:   logger.With("component", "store"),
	})
	if err != nil {
		return err
	}
	defer durable.Close()

	webhookID, err := cfg.WebhookID()
	if err != nil {
		return fmt.Errorf("log_webhook.id: %w", err)
	}
	rocket, err := agent.New(agent.Config{
		Platform:  platform,
		Messenger: discord.NewDirectMessenger(platform),
		Source:    source,
		Store:     durable,
		Webhook: agent.Webhook{
			ID:    webhookID,
			Token: cfg.LogWebhook.Token,
			Sender: eventlog.Sender{
				Name:    cfg.LogWebhook.Username,
				IconURL: cfg.LogWebhook.AvatarURL,
			},
		},
		EventLog: agent.EventLog{
			FlushInterval:  cfg.EventLog.FlushInterval,
			FlushThreshold: cfg.EventLog.FlushThreshold,
			BatchSize:      cfg.EventLog.BatchSize,
			SendTimeout:    cfg.EventLog.SendTimeout,
			SpoolPath:      cfg.EventLog.SpoolPath,
		},
		Catchup: agent.Catchup{
			PollInterval:    cfg.XKCD.PollInterval,
			MinimumCursor:   int64(cfg.XKCD.MinimumCursor),
			Concurrency:     cfg.Notifications.Concurrency,
			DeliveryTimeout: cfg.Notifications.DeliveryTimeout,
			Color:           cfg.Notifications.Color,
			Persistence:     persistenceMode(cfg.Notifications.Persistence),
		},
		Hooks: agent.Hooks{
			OnReady: func(context.Context) {
				logger.Info("rocket-agent ready", "version", version.Info())
			},
		},
		IgnoreErrors: eventlog.IgnoreErrors(xkcd.ErrNotFound, context.Canceled),
		Metrics:      instruments,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if pollNow {
		return pollOnce(ctx, rocket, logger)
	}

	if err := rocket.Start(ctx); err != nil {
		return err
	}

	triggers := make(chan os.Signal, 4)
	signal.Notify(triggers, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(triggers)

	// Operator-triggered work finishes before Stop so nothing touches
	// the store after it closes.
	var triggered sync.WaitGroup
	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case received := <-triggers:
			switch received {
			case syscall.SIGUSR1:
				triggered.Go(func() { pollOnce(ctx, rocket, logger) })
			case syscall.SIGUSR2:
				triggered.Go(func() {
					if err := rocket.Flush(ctx); err != nil {
						logger.Warn("requested event log flush failed", "error", err, "pending", rocket.Buffered())
					}
				})
			}
		}
	}

	logger.Info("shutting down")
	triggered.Wait()
	return rocket.Stop(context.Background())
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// botToken reads the bot token into protected memory, preferring the
// token file.
func botToken(cfg config.DiscordConfig) (*secret.Buffer, error) {
	if cfg.TokenFile != "" {
		token, err := secret.ReadFile(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("discord.token_file: %w", err)
		}
		return token, nil
	}
	token, err := secret.NewFromString(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord.token: %w", err)
	}
	return token, nil
}

func persistenceMode(persistence config.Persistence) subscription.Mode {
	if persistence == config.WriteThrough {
		return subscription.WriteThrough
	}
	return subscription.WriteBack
}

func pollOnce(ctx context.Context, rocket *agent.Agent, logger *slog.Logger) error {
	result, err := rocket.TriggerPoll(ctx)
	logger.Info("catch-up poll finished",
		"previous", result.Previous,
		"latest", result.Latest,
		"advanced", result.Advanced,
		"sent", result.Report.Sent,
		"skipped", result.Report.Skipped,
		"items_failed", result.Report.ItemsFailed,
	)
	if err != nil {
		logger.Warn("catch-up poll failed", "error", err)
	}
	return err
}

// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rocketbot/rocket/discord"
	"github.com/rocketbot/rocket/lib/catchup"
	"github.com/rocketbot/rocket/lib/clock"
	"github.com/rocketbot/rocket/lib/eventlog"
	"github.com/rocketbot/rocket/lib/metrics"
	"github.com/rocketbot/rocket/lib/periodic"
	"github.com/rocketbot/rocket/lib/ref"
	"github.com/rocketbot/rocket/lib/subscription"
)

// DefaultStopTimeout bounds the final flush and the subscription
// persist during Stop.
const DefaultStopTimeout = 10 * time.Second

// ErrWebhookUnresolved is returned by flushes attempted before Start
// has resolved the log webhook. The records stay buffered.
var ErrWebhookUnresolved = errors.New("agent: log webhook not resolved")

// Platform is the chat platform surface the event log needs.
// *discord.Client implements it.
type Platform interface {
	eventlog.WebhookExecutor
	GetWebhook(ctx context.Context, id ref.Snowflake) (*discord.Webhook, error)
}

// Store is the durable store. *store.Store implements it.
type Store interface {
	catchup.CursorStore
	subscription.Store
}

// Hooks are optional callbacks into the command layer.
type Hooks struct {
	// OnReady fires once at the end of a successful Start.
	OnReady func(ctx context.Context)

	// OnEventLogged fires for every record appended to the event
	// buffer. It runs on the appending goroutine and must not append.
	OnEventLogged func(eventlog.Record)
}

// Webhook identifies the log webhook.
type Webhook struct {
	ID ref.Snowflake

	// Token executes the webhook. When empty, Start fetches it from
	// the platform with the bot's credentials.
	Token string

	// Sender is the display identity of log messages.
	Sender eventlog.Sender
}

// EventLog tunes the event buffer.
type EventLog struct {
	FlushInterval  time.Duration
	FlushThreshold int
	BatchSize      int
	SendTimeout    time.Duration

	// SpoolPath, when set, receives the records left after the final
	// flush and is read back on the next Start.
	SpoolPath string
}

// Catchup tunes the poller and dispatcher.
type Catchup struct {
	PollInterval    time.Duration
	MinimumCursor   int64
	Concurrency     int
	DeliveryTimeout time.Duration
	Color           int
	Persistence     subscription.Mode
}

// Config holds the collaborators and settings of an Agent.
type Config struct {
	Platform  Platform
	Messenger catchup.Messenger
	Source    catchup.Source
	Store     Store

	Webhook  Webhook
	EventLog EventLog
	Catchup  Catchup
	Hooks    Hooks

	// IgnoreErrors selects errors ReportError drops. May be nil.
	IgnoreErrors func(error) bool

	// StopTimeout bounds the final flush and subscription persist.
	StopTimeout time.Duration

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Agent is the subsystem context. Its operations are safe for
// concurrent use once New returns.
type Agent struct {
	platform    Platform
	webhook     Webhook
	spoolPath   string
	hooks       Hooks
	stopTimeout time.Duration
	logger      *slog.Logger

	sink          *webhookRef
	events        *eventlog.Buffer
	reporter      *eventlog.Reporter
	subscriptions *subscription.Cache
	poller        *catchup.Poller
	flushTask     *periodic.Task
	pollTask      *periodic.Task

	mu      sync.Mutex
	started bool
	stopped bool
}

// New validates config and builds the subsystem. Nothing runs until
// Start.
func New(config Config) (*Agent, error) {
	if config.Platform == nil || config.Messenger == nil || config.Source == nil || config.Store == nil {
		return nil, fmt.Errorf("agent: Platform, Messenger, Source, and Store are required")
	}
	if config.Webhook.ID.IsZero() {
		return nil, fmt.Errorf("agent: Webhook.ID is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	stopTimeout := config.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}

	agent := &Agent{
		platform:    config.Platform,
		webhook:     config.Webhook,
		spoolPath:   config.EventLog.SpoolPath,
		hooks:       config.Hooks,
		stopTimeout: stopTimeout,
		logger:      logger,
		sink:        &webhookRef{},
	}

	events, err := eventlog.New(eventlog.Config{
		Sink:           agent.sink,
		Sender:         config.Webhook.Sender,
		FlushThreshold: config.EventLog.FlushThreshold,
		BatchSize:      config.EventLog.BatchSize,
		SendTimeout:    config.EventLog.SendTimeout,
		OnRecord:       config.Hooks.OnEventLogged,
		Clock:          clk,
		Metrics:        config.Metrics,
		Logger:         logger.With("component", "eventlog"),
	})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	agent.events = events
	agent.reporter = eventlog.NewReporter(events, config.IgnoreErrors)

	agent.subscriptions, err = subscription.New(subscription.Config{
		Store:  config.Store,
		Mode:   config.Catchup.Persistence,
		Logger: logger.With("component", "subscription"),
	})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	catchupLogger := logger.With("component", "catchup")
	dispatcher, err := catchup.NewDispatcher(catchup.DispatcherConfig{
		Source:          config.Source,
		Audience:        agent.subscriptions,
		Messenger:       config.Messenger,
		Concurrency:     config.Catchup.Concurrency,
		DeliveryTimeout: config.Catchup.DeliveryTimeout,
		Color:           config.Catchup.Color,
		Metrics:         config.Metrics,
		Logger:          catchupLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	agent.poller, err = catchup.NewPoller(catchup.PollerConfig{
		Source:        config.Source,
		Cursor:        config.Store,
		Notifier:      dispatcher,
		Subscriptions: agent.subscriptions,
		MinimumCursor: config.Catchup.MinimumCursor,
		Clock:         clk,
		Metrics:       config.Metrics,
		Logger:        catchupLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	if agent.flushTask, err = events.NewFlushTask(config.EventLog.FlushInterval); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	if agent.pollTask, err = agent.poller.NewPollTask(config.Catchup.PollInterval); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	return agent, nil
}

// Start brings the subsystem up. The background tasks live until Stop
// or until ctx is cancelled. A failed Start leaves nothing running
// and writes the buffered records back to the spool.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		return err
	}
	if a.hooks.OnReady != nil {
		a.hooks.OnReady(ctx)
	}
	return nil
}

func (a *Agent) start(ctx context.Context) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("agent: already started")
	}
	defer func() {
		if err == nil || a.spoolPath == "" || a.events.Len() == 0 {
			return
		}
		if spoolErr := eventlog.WriteSpool(a.spoolPath, a.events.Records()); spoolErr != nil {
			a.logger.Warn("restoring event spool failed", "path", a.spoolPath, "error", spoolErr)
		}
	}()

	if a.spoolPath != "" {
		records, err := eventlog.TakeSpool(a.spoolPath)
		if err != nil {
			a.logger.Warn("reading event spool failed", "path", a.spoolPath, "error", err)
		} else if len(records) > 0 {
			a.events.Requeue(ctx, records)
			a.logger.Info("requeued spooled events", "count", len(records))
		}
	}

	if err := a.resolveWebhook(ctx); err != nil {
		return err
	}
	if err := a.poller.Load(ctx); err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	if err := a.flushTask.Start(ctx); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if err := a.pollTask.Start(ctx); err != nil {
		a.flushTask.Stop()
		return fmt.Errorf("agent: %w", err)
	}
	a.started = true
	a.logger.Info("agent started",
		"cursor", a.poller.Cursor(),
		"persistence", a.subscriptions.Mode().String(),
		"buffered", a.events.Len(),
	)
	return nil
}

func (a *Agent) resolveWebhook(ctx context.Context) error {
	token := a.webhook.Token
	if token == "" {
		webhook, err := a.platform.GetWebhook(ctx, a.webhook.ID)
		if err != nil {
			return fmt.Errorf("agent: fetching log webhook %s: %w", a.webhook.ID, err)
		}
		if webhook.Token == "" {
			return fmt.Errorf("agent: log webhook %s has no token (not an incoming webhook, or the bot cannot manage it)", a.webhook.ID)
		}
		token = webhook.Token
	}
	sink, err := eventlog.NewWebhookSink(a.platform, a.webhook.ID, token)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	a.sink.current.Store(sink)
	return nil
}

// Stop shuts the subsystem down in order. Each task finishes its
// in-flight run before the next step. Stop is bounded by the stop
// timeout even when ctx is already cancelled, and later calls do
// nothing.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started || a.stopped {
		return nil
	}
	a.stopped = true

	a.pollTask.Stop()
	a.flushTask.Stop()

	var errs []error
	leftover, err := a.events.Drain(ctx, a.stopTimeout)
	if err != nil {
		errs = append(errs, fmt.Errorf("agent: final flush: %w", err))
	}
	if len(leftover) > 0 {
		if a.spoolPath == "" {
			a.logger.Warn("dropping undelivered events", "count", len(leftover))
		} else if err := eventlog.WriteSpool(a.spoolPath, leftover); err != nil {
			errs = append(errs, fmt.Errorf("agent: %w", err))
		} else {
			a.logger.Info("spooled undelivered events", "count", len(leftover), "path", a.spoolPath)
		}
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.stopTimeout)
	defer cancel()
	if err := a.subscriptions.Persist(persistCtx); err != nil {
		errs = append(errs, fmt.Errorf("agent: %w", err))
	}

	a.logger.Info("agent stopped", "cursor", a.poller.Cursor())
	return errors.Join(errs...)
}

// Log appends a plain record. Errors and critical records flush
// immediately and the flush error is returned.
func (a *Agent) Log(ctx context.Context, severity eventlog.Severity, title, body string) error {
	return a.events.Log(ctx, severity, title, body)
}

// Append appends record to the event buffer.
func (a *Agent) Append(ctx context.Context, record eventlog.Record) error {
	return a.events.Append(ctx, record)
}

// ReportError records an unhandled command error with the message
// that triggered it. origin may be nil.
func (a *Agent) ReportError(ctx context.Context, err error, origin *eventlog.Origin) error {
	return a.reporter.Report(ctx, err, origin)
}

// ReportPanic records a recovered panic.
func (a *Agent) ReportPanic(ctx context.Context, recovered any, stack []byte, origin *eventlog.Origin) error {
	return a.reporter.ReportPanic(ctx, recovered, stack, origin)
}

// Flush delivers everything buffered.
func (a *Agent) Flush(ctx context.Context) error {
	return a.events.Flush(ctx)
}

// OptStatus reports whether subscriber receives notifications.
func (a *Agent) OptStatus(ctx context.Context, subscriber ref.Snowflake) (bool, error) {
	return a.subscriptions.Get(ctx, subscriber)
}

// SetOptStatus changes subscriber's preference. In write-back mode
// the change reaches the store at the end of the next poll cycle or
// at Stop.
func (a *Agent) SetOptStatus(ctx context.Context, subscriber ref.Snowflake, optedIn bool) error {
	return a.subscriptions.Set(ctx, subscriber, optedIn)
}

// TriggerPoll runs one poll cycle now. It waits for a scheduled cycle
// already in progress.
func (a *Agent) TriggerPoll(ctx context.Context) (catchup.PollResult, error) {
	return a.poller.Poll(ctx)
}

// LatestNumber is the last sequence number notified.
func (a *Agent) LatestNumber() int64 {
	return a.poller.Cursor()
}

// Buffered is the number of records awaiting delivery.
func (a *Agent) Buffered() int {
	return a.events.Len()
}

// webhookRef forwards to the webhook sink once Start resolves it.
type webhookRef struct {
	current atomic.Pointer[eventlog.WebhookSink]
}

func (r *webhookRef) Send(ctx context.Context, batch []eventlog.Record, sender eventlog.Sender) error {
	sink := r.current.Load()
	if sink == nil {
		return ErrWebhookUnresolved
	}
	return sink.Send(ctx, batch, sender)
}

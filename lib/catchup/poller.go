// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package catchup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rocketbot/rocket/lib/clock"
	"github.com/rocketbot/rocket/lib/metrics"
	"github.com/rocketbot/rocket/lib/periodic"
)

// ErrSourceUnavailable wraps a failure to read the source's latest
// number. The cursor is untouched when it is returned.
var ErrSourceUnavailable = errors.New("catchup: content source unavailable")

// Defaults applied by NewPoller.
const (
	DefaultPollInterval   = 15 * time.Minute
	DefaultMinimumCursor  = 1
	DefaultPersistTimeout = 10 * time.Second
)

// State is the poller's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateNotifying
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateNotifying:
		return "notifying"
	case StatePersisting:
		return "persisting"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// CursorStore persists the cursor. *store.Store implements it.
type CursorStore interface {
	LoadCursor(ctx context.Context) (value int64, found bool, err error)
	SaveCursor(ctx context.Context, value int64) error
}

// Persister flushes deferred subscription changes.
// *subscription.Cache implements it.
type Persister interface {
	Persist(ctx context.Context) error
}

// Notifier delivers a catch-up range. *Dispatcher implements it.
type Notifier interface {
	Notify(ctx context.Context, after, through int64) (Report, error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Source        Source
	Cursor        CursorStore
	Notifier      Notifier
	Subscriptions Persister

	// MinimumCursor is the cursor when none is stored.
	MinimumCursor int64

	// PersistTimeout bounds the cursor save and subscription flush.
	// They run even when the poll's context has been cancelled.
	PersistTimeout time.Duration

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// PollResult describes one poll cycle.
type PollResult struct {
	// Previous is the cursor before the cycle.
	Previous int64
	// Latest is the source's number. Zero when it was unreachable.
	Latest int64
	// Advanced reports whether the cursor moved.
	Advanced bool
	// Report is the dispatch summary when the source had advanced.
	Report Report
}

// Poller owns the cursor.
type Poller struct {
	source         Source
	cursorStore    CursorStore
	notifier       Notifier
	subscriptions  Persister
	minimum        int64
	persistTimeout time.Duration
	clock          clock.Clock
	metrics        *metrics.Metrics
	logger         *slog.Logger

	// mu serializes Load and Poll. dirty and loaded are guarded by it.
	mu     sync.Mutex
	loaded bool
	// dirty is set when the in-memory cursor is ahead of the store.
	dirty bool

	cursor atomic.Int64
	state  atomic.Int32
}

// NewPoller validates config and returns a Poller. The cursor is read
// on the first Load or Poll.
func NewPoller(config PollerConfig) (*Poller, error) {
	if config.Source == nil || config.Cursor == nil || config.Notifier == nil {
		return nil, fmt.Errorf("catchup: poller needs Source, Cursor, and Notifier")
	}
	if config.MinimumCursor < 0 {
		return nil, fmt.Errorf("catchup: MinimumCursor must not be negative")
	}
	minimum := config.MinimumCursor
	if minimum == 0 {
		minimum = DefaultMinimumCursor
	}
	persistTimeout := config.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = DefaultPersistTimeout
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poller := &Poller{
		source:         config.Source,
		cursorStore:    config.Cursor,
		notifier:       config.Notifier,
		subscriptions:  config.Subscriptions,
		minimum:        minimum,
		persistTimeout: persistTimeout,
		clock:          clk,
		metrics:        config.Metrics,
		logger:         logger,
	}
	poller.cursor.Store(minimum)
	return poller, nil
}

// Load reads the cursor from the store, falling back to the minimum
// when none is stored. Later calls do nothing.
func (p *Poller) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadLocked(ctx)
}

func (p *Poller) loadLocked(ctx context.Context) error {
	if p.loaded {
		return nil
	}
	value, found, err := p.cursorStore.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("catchup: loading cursor: %w", err)
	}
	if !found {
		value = p.minimum
	}
	p.cursor.Store(value)
	p.loaded = true
	p.logger.Info("catch-up cursor loaded", "cursor", value, "stored", found)
	return nil
}

// Cursor is the newest reconciled item. It is the minimum until Load.
func (p *Poller) Cursor() int64 { return p.cursor.Load() }

// State reports where the current cycle is.
func (p *Poller) State() State { return State(p.state.Load()) }

// Poll runs one cycle: read the source's latest number, notify the
// range past the cursor, advance and save the cursor, and persist
// pending subscription changes. Scheduled and manual triggers both
// call Poll; concurrent calls wait their turn.
//
// An unreachable source returns ErrSourceUnavailable with the cursor
// unchanged. When ctx is cancelled during notification, the cursor
// advances to the last item fully processed.
func (p *Poller) Poll(ctx context.Context) (PollResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.state.Store(int32(StateIdle))

	if err := p.loadLocked(ctx); err != nil {
		return PollResult{}, err
	}
	result := PollResult{Previous: p.cursor.Load()}

	p.state.Store(int32(StatePolling))
	latest, err := p.source.Latest(ctx)
	if err != nil {
		p.metrics.Polled(ctx, metrics.PollUnreachable)
		return result, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	result.Latest = latest.Num

	var notifyErr error
	target := result.Previous
	if latest.Num > result.Previous {
		p.state.Store(int32(StateNotifying))
		result.Report, notifyErr = p.notifier.Notify(ctx, result.Previous, latest.Num)
		target = max(result.Report.Through, result.Previous)
		if notifyErr == nil {
			target = latest.Num
		}
	}

	p.state.Store(int32(StatePersisting))
	if target > result.Previous {
		p.cursor.Store(target)
		p.dirty = true
		result.Advanced = true
	}
	persistErr := p.persist(ctx)

	switch {
	case persistErr != nil:
		p.metrics.Polled(ctx, metrics.PollPersistFailed)
	case result.Advanced:
		p.metrics.Polled(ctx, metrics.PollAdvanced)
	default:
		p.metrics.Polled(ctx, metrics.PollUnchanged)
	}
	if result.Advanced {
		p.logger.Info("catch-up cursor advanced",
			"from", result.Previous,
			"to", target,
			"sent", result.Report.Sent,
			"skipped", result.Report.Skipped,
			"items_failed", result.Report.ItemsFailed,
		)
	}
	return result, errors.Join(notifyErr, persistErr)
}

// persist saves a dirty cursor and flushes subscription changes, on a
// context detached from ctx's cancellation. Caller holds mu.
func (p *Poller) persist(ctx context.Context) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.persistTimeout)
	defer cancel()

	var errs []error
	if p.dirty {
		value := p.cursor.Load()
		if err := p.cursorStore.SaveCursor(persistCtx, value); err != nil {
			// The cursor stays advanced in memory so the range is not
			// notified twice; the next cycle retries the save.
			errs = append(errs, fmt.Errorf("catchup: saving cursor %d: %w", value, err))
			p.logger.Warn("catch-up cursor save failed", "cursor", value, "error", err)
		} else {
			p.dirty = false
		}
	}
	if p.subscriptions != nil {
		if err := p.subscriptions.Persist(persistCtx); err != nil {
			errs = append(errs, fmt.Errorf("catchup: %w", err))
			p.logger.Warn("persisting subscription changes failed", "error", err)
		}
	}
	return errors.Join(errs...)
}

// NewPollTask returns a stopped periodic task that polls every
// interval, starting with one poll as soon as it starts. Failures are
// logged and retried next interval.
func (p *Poller) NewPollTask(interval time.Duration) (*periodic.Task, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return periodic.New(periodic.Config{
		Name:      "catchup-poll",
		Interval:  interval,
		Immediate: true,
		Clock:     p.clock,
		Logger:    p.logger,
		Run: func(ctx context.Context) {
			if _, err := p.Poll(ctx); err != nil {
				level := slog.LevelWarn
				if errors.Is(err, context.Canceled) {
					level = slog.LevelInfo
				}
				p.logger.Log(ctx, level, "catch-up poll failed", "error", err, "cursor", p.Cursor())
			}
		},
	})
}

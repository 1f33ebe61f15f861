// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package periodic runs a function on a fixed interval in one
// goroutine, with explicit Start and Stop.
//
// Runs never overlap: a tick that arrives while the previous run is
// still going is dropped, not queued. Stop cancels the context passed
// to the run in progress and waits for it to return, so a task is
// never abandoned halfway. Run functions treat cancellation as a
// request to stop at the next safe point and detach (with
// context.WithoutCancel) any step that must not be interrupted.
package periodic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rocketbot/rocket/lib/clock"
)

// ErrRunning is returned by Start on a task that is already running.
var ErrRunning = errors.New("periodic: task already running")

// Config configures a Task.
type Config struct {
	// Name labels log lines.
	Name string

	// Interval between runs. Required.
	Interval time.Duration

	// Run is called once per tick.
	Run func(ctx context.Context)

	// Immediate runs once as soon as the task starts instead of
	// waiting for the first tick.
	Immediate bool

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Task is a restartable periodic job.
type Task struct {
	name      string
	interval  time.Duration
	run       func(context.Context)
	immediate bool
	clock     clock.Clock
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	running atomic.Bool
	runs    atomic.Uint64
}

// New validates config and returns a stopped Task.
func New(config Config) (*Task, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("periodic: %s: Interval must be positive", config.Name)
	}
	if config.Run == nil {
		return nil, fmt.Errorf("periodic: %s: Run is required", config.Name)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Task{
		name:      config.Name,
		interval:  config.Interval,
		run:       config.Run,
		immediate: config.Immediate,
		clock:     clk,
		logger:    logger.With("task", config.Name),
	}, nil
}

// Start launches the loop. The ticker is registered before Start
// returns. The loop also ends when ctx is cancelled.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		select {
		case <-t.done:
		default:
			return ErrRunning
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ticker := t.clock.NewTicker(t.interval)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.running.Store(true)

	go t.loop(loopCtx, ticker, done)
	t.logger.Debug("periodic task started", "interval", t.interval)
	return nil
}

// Stop cancels the loop and waits for any run in progress. Stopping a
// stopped task is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (t *Task) Running() bool { return t.running.Load() }

// Runs returns how many runs have completed since creation.
func (t *Task) Runs() uint64 { return t.runs.Load() }

func (t *Task) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer t.running.Store(false)
	defer ticker.Stop()

	if t.immediate {
		t.runOnce(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("periodic task stopped")
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			t.runOnce(ctx)
		}
	}
}

func (t *Task) runOnce(ctx context.Context) {
	defer t.runs.Add(1)
	defer func() {
		if recovered := recover(); recovered != nil {
			t.logger.Error("periodic task panicked", "panic", recovered)
		}
	}()
	t.run(ctx)
}

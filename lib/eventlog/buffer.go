// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/rocketbot/rocket/discord"
	"github.com/rocketbot/rocket/lib/clock"
	"github.com/rocketbot/rocket/lib/metrics"
	"github.com/rocketbot/rocket/lib/periodic"
)

// Defaults applied by New.
const (
	DefaultFlushThreshold = 10
	DefaultBatchSize      = discord.MaxEmbedsPerMessage
	DefaultSendTimeout    = 10 * time.Second
	DefaultFlushInterval  = time.Minute
)

// Config configures a Buffer.
type Config struct {
	// Sink receives flushed batches. Required.
	Sink Sink

	// Sender is the display identity passed to every Send.
	Sender Sender

	// FlushThreshold is the buffered length at which Append flushes.
	FlushThreshold int

	// BatchSize caps the records per Send call. At most
	// discord.MaxEmbedsPerMessage.
	BatchSize int

	// SendTimeout bounds each Send call.
	SendTimeout time.Duration

	// OnRecord, when set, is called with every appended record after
	// it is buffered and before any flush it triggers.
	OnRecord func(Record)

	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Buffer is the ordered queue of records awaiting delivery. It is
// safe for concurrent use.
type Buffer struct {
	sink        Sink
	sender      Sender
	threshold   int
	batchSize   int
	sendTimeout time.Duration
	onRecord    func(Record)
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// flushMu serializes flushes. While it is held, only the flush
	// removes records, and it removes them from the front.
	flushMu sync.Mutex

	mu      sync.Mutex
	records []Record
}

// New validates config and returns an empty Buffer.
func New(config Config) (*Buffer, error) {
	if config.Sink == nil {
		return nil, fmt.Errorf("eventlog: Sink is required")
	}
	threshold := config.FlushThreshold
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > discord.MaxEmbedsPerMessage {
		return nil, fmt.Errorf("eventlog: BatchSize %d exceeds the sink limit of %d", batchSize, discord.MaxEmbedsPerMessage)
	}
	sendTimeout := config.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Buffer{
		sink:        config.Sink,
		sender:      config.Sender,
		threshold:   threshold,
		batchSize:   batchSize,
		sendTimeout: sendTimeout,
		onRecord:    config.OnRecord,
		clock:       clk,
		metrics:     config.Metrics,
		logger:      logger,
	}, nil
}

// Append buffers record. When the buffer reaches the flush threshold
// or the record is urgent, Append flushes before returning and
// returns the flush error. The record stays buffered either way.
func (b *Buffer) Append(ctx context.Context, record Record) error {
	if record.Time.IsZero() {
		record.Time = b.clock.Now()
	}
	if record.ID.IsNil() {
		record.ID = xid.NewWithTime(record.Time)
	}

	b.mu.Lock()
	b.records = append(b.records, record)
	length := len(b.records)
	b.mu.Unlock()

	b.metrics.RecordAppended(ctx)
	if b.onRecord != nil {
		b.onRecord(record)
	}

	if length >= b.threshold || record.Severity.Urgent() {
		return b.Flush(ctx)
	}
	return nil
}

// Log appends a record with no origin or error.
func (b *Buffer) Log(ctx context.Context, severity Severity, title, body string) error {
	return b.Append(ctx, Record{Severity: severity, Title: title, Body: body})
}

// Flush delivers the buffered records in order, in chunks of at most
// the batch size, and removes each chunk once the sink accepts it.
// Flushing an empty buffer makes no calls. The first failed chunk
// ends the flush with its error; it and every later record stay
// buffered. Cancelling ctx stops the flush between chunks.
func (b *Buffer) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	pending := slices.Clone(b.records)
	b.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	delivered := 0
	for delivered < len(pending) {
		if err := ctx.Err(); err != nil {
			b.metrics.Flushed(ctx, delivered, err)
			return fmt.Errorf("eventlog: flush interrupted with %d records pending: %w", len(pending)-delivered, err)
		}
		end := min(delivered+b.batchSize, len(pending))
		if err := b.send(ctx, pending[delivered:end]); err != nil {
			b.metrics.Flushed(ctx, delivered, err)
			return fmt.Errorf("eventlog: flush: sending records %d-%d of %d: %w", delivered+1, end, len(pending), err)
		}
		b.dropFront(end - delivered)
		delivered = end
	}

	b.metrics.Flushed(ctx, delivered, nil)
	b.logger.Debug("event log flushed", "records", delivered)
	return nil
}

func (b *Buffer) send(ctx context.Context, batch []Record) error {
	sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()
	return b.sink.Send(sendCtx, batch, b.sender)
}

// dropFront removes the n oldest records. Caller holds flushMu.
func (b *Buffer) dropFront(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.records[:n])
	b.records = b.records[n:]
	if len(b.records) == 0 {
		b.records = nil
	}
}

// Requeue puts records back at the front of the buffer, ahead of
// anything appended since. Used to restore a spool at startup. It
// does not flush.
func (b *Buffer) Requeue(ctx context.Context, records []Record) {
	if len(records) == 0 {
		return
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.mu.Lock()
	b.records = append(slices.Clone(records), b.records...)
	b.mu.Unlock()
	b.metrics.Requeued(ctx, len(records))
}

// Len is the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Records returns a copy of the buffered records in delivery order.
func (b *Buffer) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.records)
}

// Drain runs one last flush that ignores ctx cancellation and is
// bounded by timeout instead, then returns whatever is still
// buffered. The flush task must already be stopped.
func (b *Buffer) Drain(ctx context.Context, timeout time.Duration) ([]Record, error) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	err := b.Flush(drainCtx)
	return b.Records(), err
}

// NewFlushTask returns a stopped periodic task that flushes b every
// interval. Failures are logged and left for the next trigger.
func (b *Buffer) NewFlushTask(interval time.Duration) (*periodic.Task, error) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return periodic.New(periodic.Config{
		Name:     "eventlog-flush",
		Interval: interval,
		Clock:    b.clock,
		Logger:   b.logger,
		Run: func(ctx context.Context) {
			if err := b.Flush(ctx); err != nil {
				b.logger.Warn("scheduled event log flush failed",
					"error", err,
					"pending", b.Len(),
				)
			}
		},
	})
}

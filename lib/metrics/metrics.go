// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the agent's OpenTelemetry instruments.
//
// Components take an optional *Metrics; every method is safe on a nil
// receiver so tests and minimal wiring can leave it out. The binary
// calls [Setup] to export through OTLP when an endpoint is configured
// and otherwise records into the global no-op provider.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scope is the instrumentation scope name.
const scope = "github.com/rocketbot/rocket"

// Poll outcomes.
const (
	PollUnreachable   = "unreachable"
	PollUnchanged     = "unchanged"
	PollAdvanced      = "advanced"
	PollPersistFailed = "persist_failed"
)

// Delivery results.
const (
	DeliverySent    = "sent"
	DeliveryRefused = "refused"
	DeliveryFailed  = "failed"
)

// Metrics holds the instruments.
type Metrics struct {
	records    metric.Int64Counter
	flushes    metric.Int64Counter
	flushed    metric.Int64Counter
	buffered   metric.Int64UpDownCounter
	polls      metric.Int64Counter
	items      metric.Int64Counter
	deliveries metric.Int64Counter
}

// New creates the instruments on provider.
func New(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(scope)
	var m Metrics
	var err error

	if m.records, err = meter.Int64Counter("rocket.eventlog.records",
		metric.WithDescription("Event records appended to the telemetry buffer."),
		metric.WithUnit("{record}")); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if m.flushes, err = meter.Int64Counter("rocket.eventlog.flushes",
		metric.WithDescription("Non-empty flush attempts by result."),
		metric.WithUnit("{flush}")); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if m.flushed, err = meter.Int64Counter("rocket.eventlog.delivered",
		metric.WithDescription("Event records accepted by the telemetry sink."),
		metric.WithUnit("{record}")); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if m.buffered, err = meter.Int64UpDownCounter("rocket.eventlog.buffered",
		metric.WithDescription("Event records waiting for delivery."),
		metric.WithUnit("{record}")); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if m.polls, err = meter.Int64Counter("rocket.catchup.polls",
		metric.WithDescription("Update poll cycles by outcome."),
		metric.WithUnit("{poll}")); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if m.items, err = meter.Int64Counter("rocket.catchup.items",
		metric.WithDescription("Catch-up items processed by result."),
		metric.WithUnit("{item}")); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if m.deliveries, err = meter.Int64Counter("rocket.catchup.deliveries",
		metric.WithDescription("Per-subscriber notification deliveries by result."),
		metric.WithUnit("{message}")); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	return &m, nil
}

// RecordAppended counts one appended record.
func (m *Metrics) RecordAppended(ctx context.Context) {
	if m == nil {
		return
	}
	m.records.Add(ctx, 1)
	m.buffered.Add(ctx, 1)
}

// Flushed counts one flush attempt that delivered n records.
func (m *Metrics) Flushed(ctx context.Context, delivered int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.flushes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	if delivered > 0 {
		m.flushed.Add(ctx, int64(delivered))
		m.buffered.Add(ctx, -int64(delivered))
	}
}

// Requeued counts records put back into the buffer, from the spool.
func (m *Metrics) Requeued(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.buffered.Add(ctx, int64(n))
}

// Polled counts one poll cycle.
func (m *Metrics) Polled(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ItemProcessed counts one catch-up item.
func (m *Metrics) ItemProcessed(ctx context.Context, err error) {
	if m == nil {
		return
	}
	result := "notified"
	if err != nil {
		result = "failed"
	}
	m.items.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Delivered counts one per-subscriber delivery.
func (m *Metrics) Delivered(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

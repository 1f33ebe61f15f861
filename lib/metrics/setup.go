// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"

	"github.com/rocketbot/rocket/lib/version"
)

// ExportConfig configures Setup.
type ExportConfig struct {
	// Endpoint is the OTLP gRPC collector, "host:port" or a URL. An
	// https URL enables TLS. Empty disables export.
	Endpoint string
	// Interval between exports. Defaults to 30s.
	Interval time.Duration
	// ServiceName defaults to "rocket-agent".
	ServiceName string
}

// Setup installs a global meter provider exporting to the configured
// collector and returns the agent's instruments with a shutdown
// function that flushes pending exports. With no endpoint the global
// no-op provider is used and shutdown does nothing.
func Setup(ctx context.Context, config ExportConfig) (*Metrics, func(context.Context) error, error) {
	endpoint := strings.TrimSpace(config.Endpoint)
	if endpoint == "" {
		instruments, err := New(otel.GetMeterProvider())
		return instruments, func(context.Context) error { return nil }, err
	}

	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return nil, nil, fmt.Errorf("metrics: invalid OTLP endpoint %q", config.Endpoint)
	}

	options := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(parsed.Host)}
	if parsed.Scheme != "https" {
		options = append(options, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, options...)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: creating OTLP exporter: %w", err)
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = "rocket-agent"
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version.Version),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: building resource: %w", err)
	}

	interval := config.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)

	instruments, err := New(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, nil, err
	}
	return instruments, provider.Shutdown, nil
}

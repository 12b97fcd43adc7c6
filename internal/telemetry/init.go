// Package telemetry wires Panopticon's OTel metrics and log events.
//
// Telemetry is opt-in: when PAN_OTEL_METRICS_URL is unset, Init is a
// no-op and every Record* function emits against the default no-op
// providers. Metrics push over OTLP/HTTP on a periodic reader; log
// events batch over OTLP/HTTP to the logs endpoint.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Environment variables that activate telemetry.
const (
	EnvMetricsURL = "PAN_OTEL_METRICS_URL"
	EnvLogsURL    = "PAN_OTEL_LOGS_URL"
)

// exportInterval is how often the periodic reader pushes metrics.
const exportInterval = 15 * time.Second

// Init configures the global OTel meter and logger providers from the
// environment. Returns a shutdown function that flushes pending data.
// When PAN_OTEL_METRICS_URL is unset, Init does nothing and the
// returned shutdown is a no-op.
func Init(ctx context.Context) (func(context.Context) error, error) {
	metricsURL := os.Getenv(EnvMetricsURL)
	if metricsURL == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName("panopticon"),
		))
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}

	metricExp, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpointURL(metricsURL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(mp)

	var lp *sdklog.LoggerProvider
	if logsURL := os.Getenv(EnvLogsURL); logsURL != "" {
		logExp, err := otlploghttp.New(ctx,
			otlploghttp.WithEndpointURL(logsURL),
		)
		if err != nil {
			return nil, fmt.Errorf("creating log exporter: %w", err)
		}
		lp = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		)
		global.SetLoggerProvider(lp)
	}

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := mp.Shutdown(ctx); err != nil {
			firstErr = err
		}
		if lp != nil {
			if err := lp.Shutdown(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return shutdown, nil
}

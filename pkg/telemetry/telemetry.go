// Package telemetry wires OpenTelemetry tracing and RED metrics
// (rate, errors, duration) for the runtime orchestrator, following the same provider/exporter shape as the
// teacher's observability package.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the backplane's telemetry providers.
type Config struct {
	ServiceName  string
	OTLPEndpoint string
	Insecure     bool
	Enabled      bool
}

// DefaultConfig returns telemetry disabled by default; callers opt in
// explicitly via configuration (spec §10).
func DefaultConfig() Config {
	return Config{
		ServiceName:  "agent-backplane",
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		Enabled:      false,
	}
}

// Provider exposes the tracer/meter pair and the run-scoped RED
// instruments used by pkg/runtime.
type Provider struct {
	cfg    Config
	logger *slog.Logger

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	runsTotal    metric.Int64Counter
	runErrors    metric.Int64Counter
	runDuration  metric.Float64Histogram
	runsInFlight metric.Int64UpDownCounter
}

// New builds a Provider. If cfg.Enabled is false, New returns a
// Provider whose instruments are no-ops so callers never need to
// nil-check.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{cfg: cfg, logger: logger.With("component", "telemetry")}

	if !cfg.Enabled {
		p.tracer = otel.Tracer("abp.runtime")
		p.meter = otel.Meter("abp.runtime")
		return p, p.initREDMetrics()
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		attribute.String("abp.component", "runtime"),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource merge failed: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(p.tracerProvider)

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)

	p.tracer = otel.Tracer("abp.runtime")
	p.meter = otel.Meter("abp.runtime")

	if err := p.initREDMetrics(); err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "telemetry initialized", "endpoint", cfg.OTLPEndpoint)
	return p, nil
}

func (p *Provider) initREDMetrics() error {
	var err error
	p.runsTotal, err = p.meter.Int64Counter("abp.runs.total", metric.WithDescription("Total runs started"))
	if err != nil {
		return err
	}
	p.runErrors, err = p.meter.Int64Counter("abp.runs.errors", metric.WithDescription("Total runs ending in error"))
	if err != nil {
		return err
	}
	p.runDuration, err = p.meter.Float64Histogram("abp.run.duration", metric.WithDescription("Run duration in seconds"), metric.WithUnit("s"))
	if err != nil {
		return err
	}
	p.runsInFlight, err = p.meter.Int64UpDownCounter("abp.runs.in_flight", metric.WithDescription("Runs currently executing"))
	return err
}

// StartRun begins a span for backendName and returns a function to
// call when the run finishes, recording duration and error RED
// metrics.
func (p *Provider) StartRun(ctx context.Context, backendName, runID string) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{
		attribute.String("abp.backend", backendName),
		attribute.String("abp.run_id", runID),
	}
	ctx, span := p.tracer.Start(ctx, "abp.run", trace.WithAttributes(attrs...))
	start := time.Now()

	if p.runsInFlight != nil {
		p.runsInFlight.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if p.runsTotal != nil {
		p.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		if p.runsInFlight != nil {
			p.runsInFlight.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		if p.runDuration != nil {
			p.runDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			span.RecordError(err)
			if p.runErrors != nil {
				p.runErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
		}
		span.End()
	}
}

// Shutdown flushes and stops the providers, if enabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "telemetry: trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "telemetry: meter provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Package tracing wires OpenTelemetry tracing around the core's
// lifecycle operations. It is ambient instrumentation (spec.md §1:
// out of scope for correctness) — disabling it changes nothing about
// control flow.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sessionbridge/orchestrator/internal/config"
)

// Shutdown flushes and tears down the tracer provider.
type Shutdown func(context.Context) error

// Setup installs a global tracer provider per cfg. When tracing is
// disabled it installs a no-op provider so callers never need to
// branch on whether tracing is active.
func Setup(ctx context.Context, cfg config.TracingConfig) (Shutdown, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName(cfg)),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func serviceName(cfg config.TracingConfig) string {
	if cfg.ServiceName == "" {
		return "session-orchestrator"
	}
	return cfg.ServiceName
}

// Tracer returns the package-scoped tracer for core components to
// start spans with.
func Tracer() trace.Tracer {
	return otel.Tracer("session-orchestrator")
}

// Package telemetry configures OpenTelemetry tracing.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options selects the trace exporter.
type Options struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	// SampleRatio is the fraction of root spans sampled; 0 or 1 samples all.
	SampleRatio float64
}

// Setup registers a global tracer provider exporting over OTLP/HTTP.
//
// Tracing is opt-in: when disabled or without an endpoint, Setup returns a
// no-op shutdown function and leaves the global no-op provider in place.
// The returned shutdown function flushes pending spans.
func Setup(ctx context.Context, o Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !o.Enabled || o.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(o.Endpoint))
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(o.ServiceName)))
	if err != nil {
		return noop, err
	}

	sampler := sdktrace.AlwaysSample()
	if o.SampleRatio > 0 && o.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Package tracing wraps the OpenTelemetry SDK with the minimal surface the
// gateway needs: a process-wide TracerProvider, a named Tracer, and a
// StartSpan helper. The gateway installs the provider at startup; it does
// not start spans itself.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Configure installs a process-wide TracerProvider tagged with serviceName.
// With no exporter registered, spans are recorded and discarded; this still
// exercises the same span/attribute API an exporter-backed deployment would
// use, and a real OTLP exporter can be wired into provider later without
// touching call sites.
func Configure(serviceName string) func(context.Context) error {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	provider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(provider)
	return provider.Shutdown
}

// Tracer returns the named tracer used to start gateway pipeline spans.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a span named op under ctx with the given string
// attributes, returning the derived context and span.
func StartSpan(ctx context.Context, tracer trace.Tracer, op string, attrs map[string]string) (context.Context, trace.Span) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
	}
	return tracer.Start(ctx, op, trace.WithAttributes(kv...))
}

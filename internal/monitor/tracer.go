package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "safe-command-gateway"

// Tracer wraps OpenTelemetry tracing for the gateway.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("gateway.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for invocation tracing.
var (
	AttrInvocationID = attribute.Key("gateway.invocation.id")
	AttrLevel        = attribute.Key("gateway.verdict.level")
	AttrCommandHash  = attribute.Key("gateway.command_hash")
	AttrExitCode     = attribute.Key("gateway.exit_code")
	AttrDurationMS   = attribute.Key("gateway.duration_ms")
)

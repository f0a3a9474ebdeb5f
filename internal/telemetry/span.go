package telemetry

import (
	"context"
	"time"

	"github.com/relaymesh/incidentforge/internal/telemetry/tracker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
)

// InitTracing sets up the global tracer and namer.
// Called once during application initialization.
func InitTracing(tracer trace.Tracer, namer SpanNamer) {
	tracker.Set(tracer, namer)
}

// Start begins a new span with the configured namer applied.
func Start(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracker.Start(ctx, operation, opts...)
}

// StartServer begins a new server span (e.g., handling an incoming HTTP/gRPC request).
func StartServer(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append([]trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindServer)}, opts...)
	return Start(ctx, operation, opts...)
}

// StartClient begins a new client span (e.g., an outbound store call).
func StartClient(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append([]trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindClient)}, opts...)
	return Start(ctx, operation, opts...)
}

// StartInternal begins a new internal span (e.g., generating a batch of incidents).
func StartInternal(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append([]trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}, opts...)
	return Start(ctx, operation, opts...)
}

// StartProducer begins a new producer span (e.g., publishing an incident/repair event to NATS).
func StartProducer(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append([]trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindProducer)}, opts...)
	return Start(ctx, operation, opts...)
}

// StartConsumer begins a new consumer span.
func StartConsumer(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	opts = append([]trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindConsumer)}, opts...)
	return Start(ctx, operation, opts...)
}

// Span returns the current span from context.
func Span(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// TraceID returns the trace ID from context, or empty string if none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}

	return ""
}

// SpanID returns the span ID from context, or empty string if none.
func SpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasSpanID() {
		return sc.SpanID().String()
	}

	return ""
}

// SpanFromContext retrieves the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// RecordError records an error on the current span and sets status.
// If err is nil, this is a no-op.
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// SetSuccess marks the current span as successful.
func SetSuccess(ctx context.Context) {
	trace.SpanFromContext(ctx).SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// logLoggerName is the instrumentation scope name used for every Emit* call.
// A single scope is enough: severity and attributes carry the distinctions.
const logLoggerName = "github.com/relaymesh/incidentforge/internal/telemetry"

// emit writes a single log record through the global OTel LoggerProvider,
// stamping it with the trace/span IDs from ctx so a WOULD_FIX line can be
// correlated back to the repair-scheduler span that produced it. If no
// LoggerProvider has been configured (telemetry disabled, or logs disabled),
// global.Logger returns a no-op logger and this is a cheap no-op.
func emit(ctx context.Context, severity otellog.Severity, body string, attrs ...attribute.KeyValue) {
	logger := global.Logger(logLoggerName)

	var rec otellog.Record
	rec.SetTimestamp(time.Now())
	rec.SetSeverity(severity)
	rec.SetBody(otellog.StringValue(body))

	kvs := make([]otellog.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		kvs = append(kvs, otellog.KeyValue{Key: string(a.Key), Value: otellog.StringValue(a.Value.Emit())})
	}
	rec.AddAttributes(kvs...)

	logger.Emit(ctx, rec)
}

// EmitInfo emits an informational structured log record, e.g. a run's
// lifecycle transition or a completed repair.
func EmitInfo(ctx context.Context, body string, attrs ...attribute.KeyValue) {
	emit(ctx, otellog.SeverityInfo, body, attrs...)
}

// EmitWarn emits a warning-level structured log record.
func EmitWarn(ctx context.Context, body string, attrs ...attribute.KeyValue) {
	emit(ctx, otellog.SeverityWarn, body, attrs...)
}

// EmitError emits an error-level structured log record.
func EmitError(ctx context.Context, body string, attrs ...attribute.KeyValue) {
	emit(ctx, otellog.SeverityError, body, attrs...)
}

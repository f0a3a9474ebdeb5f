package telemetry

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// knownPropagators lists the propagator names supported by this package.
// b3, b3multi, jaeger, xray, ottrace require additional contrib packages.
var knownPropagators = map[string]bool{
	"tracecontext": true,
	"baggage":      true,
	"b3":           true,
	"b3multi":      true,
	"jaeger":       true,
	"xray":         true,
	"ottrace":      true,
	"none":         true,
}

// buildPropagator creates a text map propagator based on configuration.
// Only the tracecontext and baggage propagators are built. The names b3,
// b3multi, jaeger, xray, ottrace and none are accepted as known but add no
// propagator. Unknown propagator names are reported via otel.Handle and ignored.
func buildPropagator(cfg *PropConfig) propagation.TextMapPropagator {
	if cfg == nil {
		cfg = &PropConfig{Propagators: "tracecontext,baggage"}
	}

	var propagators []propagation.TextMapPropagator

	for _, name := range splitPropagators(cfg.Propagators) {
		if !knownPropagators[name] {
			otel.Handle(errors.New("telemetry: unknown propagator \"" + name + "\" in OTEL_PROPAGATORS, ignoring"))
		}
	}

	if cfg.HasTraceContext() {
		propagators = append(propagators, propagation.TraceContext{})
	}
	if cfg.HasBaggage() {
		propagators = append(propagators, propagation.Baggage{})
	}

	if len(propagators) == 0 {
		return propagation.NewCompositeTextMapPropagator()
	}

	return propagation.NewCompositeTextMapPropagator(propagators...)
}

// InjectHTTP injects trace context and baggage into HTTP headers.
func InjectHTTP(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// ExtractHTTP extracts trace context and baggage from HTTP headers.
func ExtractHTTP(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

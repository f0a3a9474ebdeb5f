package httpapi

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Instrument wraps handler with OTel tracing and metrics using the globally
// registered TracerProvider, MeterProvider, and TextMapPropagator.
//
// For explicit provider injection (tests, multiple servers), use
// [InstrumentWithProviders] instead.
func Instrument(handler http.Handler, operation string, opts ...otelhttp.Option) http.Handler {
	return otelhttp.NewHandler(handler, operation, opts...)
}

// InstrumentWithProviders wraps handler with OTel tracing and metrics using
// explicitly provided providers. A nil provider falls back to the global one.
func InstrumentWithProviders(
	handler http.Handler,
	operation string,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	prop propagation.TextMapPropagator,
	opts ...otelhttp.Option,
) http.Handler {
	allOpts := buildProviderOptions(tp, mp, prop)
	allOpts = append(allOpts, opts...)

	return otelhttp.NewHandler(handler, operation, allOpts...)
}

func buildProviderOptions(
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	prop propagation.TextMapPropagator,
) []otelhttp.Option {
	var opts []otelhttp.Option

	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	} else {
		opts = append(opts, otelhttp.WithTracerProvider(otel.GetTracerProvider()))
	}

	if mp != nil {
		opts = append(opts, otelhttp.WithMeterProvider(mp))
	} else {
		opts = append(opts, otelhttp.WithMeterProvider(otel.GetMeterProvider()))
	}

	if prop != nil {
		opts = append(opts, otelhttp.WithPropagators(prop))
	} else {
		opts = append(opts, otelhttp.WithPropagators(otel.GetTextMapPropagator()))
	}

	return opts
}

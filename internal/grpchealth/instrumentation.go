// Package grpchealth exposes the standard gRPC health-checking protocol
// (grpc.health.v1.Health) as a secondary liveness/readiness transport
// alongside the HTTP control surface, instrumented the same way every other
// server in this service is: an otelgrpc stats.Handler bound to the global
// TracerProvider/MeterProvider/TextMapPropagator.
package grpchealth

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/stats"
)

// ServerHandler returns a gRPC stats.Handler for server-side tracing and
// metrics, using the globally registered TracerProvider, MeterProvider, and
// TextMapPropagator. Call telemetry.NewTracerProvider/NewMeterProvider before
// constructing a server with this handler.
//
// For explicit provider injection (e.g. in tests), use
// [ServerHandlerWithProviders] instead.
func ServerHandler(opts ...otelgrpc.Option) stats.Handler {
	return otelgrpc.NewServerHandler(opts...)
}

// ServerHandlerWithProviders returns a gRPC stats.Handler for server-side
// tracing and metrics with explicitly provided TracerProvider, MeterProvider,
// and TextMapPropagator. If any provider is nil, the corresponding global
// provider is used as a fallback.
func ServerHandlerWithProviders(
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	prop propagation.TextMapPropagator,
	opts ...otelgrpc.Option,
) stats.Handler {
	allOpts := buildProviderOptions(tp, mp, prop)
	allOpts = append(allOpts, opts...)

	return otelgrpc.NewServerHandler(allOpts...)
}

func buildProviderOptions(
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	prop propagation.TextMapPropagator,
) []otelgrpc.Option {
	var opts []otelgrpc.Option

	if tp != nil {
		opts = append(opts, otelgrpc.WithTracerProvider(tp))
	} else {
		opts = append(opts, otelgrpc.WithTracerProvider(otel.GetTracerProvider()))
	}

	if mp != nil {
		opts = append(opts, otelgrpc.WithMeterProvider(mp))
	} else {
		opts = append(opts, otelgrpc.WithMeterProvider(otel.GetMeterProvider()))
	}

	if prop != nil {
		opts = append(opts, otelgrpc.WithPropagators(prop))
	} else {
		opts = append(opts, otelgrpc.WithPropagators(otel.GetTextMapPropagator()))
	}

	return opts
}

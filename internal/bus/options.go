package bus

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaymesh/incidentforge/internal/telemetry/tracker"
)

const instrumentationName = "github.com/relaymesh/incidentforge/internal/bus"

type options struct {
	tracerName string
	prop       propagation.TextMapPropagator
}

func defaultOptions() options {
	return options{tracerName: instrumentationName}
}

// Option configures the publisher's tracing behavior.
type Option func(*options)

// WithTracerName sets a custom tracer name. Default is the package path.
func WithTracerName(name string) Option {
	return func(o *options) { o.tracerName = name }
}

// WithPropagator sets a custom propagator for header injection.
// If unset, the global propagator is used.
func WithPropagator(prop propagation.TextMapPropagator) Option {
	return func(o *options) { o.prop = prop }
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

func getTracer(tp trace.TracerProvider, o options) trace.Tracer {
	if o.tracerName != instrumentationName {
		if tp == nil {
			tp = otel.GetTracerProvider()
		}

		return tp.Tracer(o.tracerName)
	}

	if t := tracker.Tracer(); t != nil {
		return t
	}

	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return tp.Tracer(o.tracerName)
}

func getPropagator(o options) propagation.TextMapPropagator {
	if o.prop != nil {
		return o.prop
	}

	return otel.GetTextMapPropagator()
}

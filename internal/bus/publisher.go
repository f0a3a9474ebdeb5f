package bus

import (
	"context"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Publisher wraps JetStream publish operations with OpenTelemetry tracing.
// It is the fan-out half of the event bus: this service never consumes
// messages, so no consumer/process-span machinery is carried here.
type Publisher struct {
	js     jetstream.JetStream
	tracer trace.Tracer
	prop   propagation.TextMapPropagator
}

// NewPublisher creates a Publisher using the global tracer/propagator.
func NewPublisher(js jetstream.JetStream, opts ...Option) *Publisher {
	return NewPublisherWithProviders(js, nil, nil, opts...)
}

// NewPublisherWithProviders creates a Publisher with explicit providers.
// If tp or prop is nil, the corresponding global is used.
func NewPublisherWithProviders(
	js jetstream.JetStream,
	tp trace.TracerProvider,
	prop propagation.TextMapPropagator,
	opts ...Option,
) *Publisher {
	if js == nil {
		panic("bus: JetStream must not be nil")
	}
	o := applyOptions(opts)

	if prop != nil {
		o.prop = prop
	}

	return &Publisher{
		js:     js,
		tracer: getTracer(tp, o),
		prop:   getPropagator(o),
	}
}

// JetStream returns the underlying JetStream client for operations this
// wrapper doesn't cover.
func (p *Publisher) JetStream() jetstream.JetStream {
	return p.js
}

// Publish publishes data to subject with a producer span wrapping the call
// and trace context injected into the message headers.
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	ctx, span := p.tracer.Start(ctx, opTypePublish+" "+subject,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(publishAttributes(subject, "", len(data))...),
	)
	defer span.End()

	msg := &nats.Msg{Subject: subject, Data: data, Header: make(nats.Header)}
	p.prop.Inject(ctx, headerCarrier(msg.Header))

	ack, err := p.js.PublishMsg(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	if ack != nil {
		span.SetAttributes(publishAttributes(subject, strconv.FormatUint(ack.Sequence, 10), 0)...)
	}

	return ack, nil
}

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ErrDisabled is returned when telemetry is disabled.
var ErrDisabled = errors.New("telemetry: disabled")

// ErrLogsDisabled is returned when log export is disabled.
var ErrLogsDisabled = errors.New("telemetry: logs export is disabled")

// ErrMetricsDisabled is returned when metrics export is disabled.
var ErrMetricsDisabled = errors.New("telemetry: metrics export is disabled")

// ErrServiceNameRequired is returned when ServiceName is empty but telemetry is enabled.
var ErrServiceNameRequired = errors.New("telemetry: service name is required")

// NewTracerProvider initializes the OpenTelemetry TracerProvider.
// Returns ErrDisabled if telemetry is not enabled in config.
func NewTracerProvider(ctx context.Context, cfg *Config) (*sdktrace.TracerProvider, error) {
	if !cfg.IsEnabled() {
		return nil, ErrDisabled
	}
	if cfg.Traces != nil && !cfg.Traces.IsEnabled() {
		return nil, ErrDisabled
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sampler := buildSampler(cfg.GetSamplingConfig())

	exporter, err := buildTraceExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(buildPropagator(cfg.Propagation))

	return tp, nil
}

// NewLoggerProvider initializes the OpenTelemetry LoggerProvider used by the
// structured log helpers (see span.go's Emit*). Returns ErrLogsDisabled if
// log export is not enabled in config.
func NewLoggerProvider(ctx context.Context, cfg *Config) (*sdklog.LoggerProvider, error) {
	if !cfg.IsEnabled() {
		return nil, ErrDisabled
	}
	if cfg.Logs == nil || !cfg.Logs.IsEnabled() {
		return nil, ErrLogsDisabled
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := buildLogExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	global.SetLoggerProvider(lp)

	return lp, nil
}

// NewMeterProvider initializes the OpenTelemetry MeterProvider used for the
// producer pool's and repair scheduler's counters/gauges. Returns
// ErrMetricsDisabled if metrics export is not enabled in config.
func NewMeterProvider(ctx context.Context, cfg *Config) (*sdkmetric.MeterProvider, error) {
	if !cfg.IsEnabled() {
		return nil, ErrDisabled
	}
	if cfg.Metrics == nil || !cfg.Metrics.IsEnabled() {
		return nil, ErrMetricsDisabled
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := buildMetricExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build metric exporter: %w", err)
	}

	interval := normalizeMetricInterval(cfg.Metrics.Interval, 15*time.Second)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(interval),
		)),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}

// buildResource creates the common resource shared by all providers.
func buildResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	if cfg.ServiceName == "" {
		return nil, ErrServiceNameRequired
	}

	baseAttrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
		semconv.DeploymentEnvironment(cfg.Environment),
	}
	for key, value := range cfg.ResourceAttributes {
		if key == "" {
			continue
		}
		baseAttrs = append(baseAttrs, attribute.String(key, value))
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(baseAttrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	return res, nil
}

// normalizeMetricInterval treats sub-millisecond values as milliseconds,
// matching how the OTel spec interprets bare-numeric env values.
func normalizeMetricInterval(value, defaultValue time.Duration) time.Duration {
	if value <= 0 {
		return defaultValue
	}
	if value < time.Millisecond {
		ms := int64(value / time.Nanosecond)
		if ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}

		return defaultValue
	}

	return value
}

func buildSampler(cfg *SamplingConfig) sdktrace.Sampler {
	if cfg == nil {
		cfg = &SamplingConfig{Sampler: "parentbased_always_on", SamplerArg: 1.0}
	}

	switch cfg.Sampler {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(cfg.SamplerArg)
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplerArg))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

package telemetry

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// exporterParams holds the resolved parameters used to build one signal's exporter.
// Only the HTTP OTLP transport is supported: the gRPC OTLP exporter variants
// the teacher carries (otlptracegrpc/otlploggrpc/otlpmetricgrpc) are dropped
// here because they duplicate the HTTP transport for the same signal with no
// second protocol requirement in this service (see DESIGN.md).
type exporterParams struct {
	Type        string // "otlp", "console", "none"
	Endpoint    string
	Headers     map[string]string
	Timeout     time.Duration
	Compression string
	Insecure    bool
}

func baseExporterParams(cfg *Config) exporterParams {
	params := exporterParams{
		Type:     "otlp",
		Endpoint: "http://localhost:4318",
		Timeout:  10 * time.Second,
		Insecure: true,
	}

	if cfg == nil {
		return params
	}

	otlp := cfg.GetOTLPConfig()
	if otlp.Endpoint != "" {
		params.Endpoint = otlp.Endpoint
	}
	if otlp.Timeout > 0 {
		params.Timeout = otlp.Timeout
	}
	if otlp.Headers != nil {
		params.Headers = otlp.Headers
	}
	params.Compression = otlp.Compression
	params.Insecure = otlp.IsInsecure()

	return params
}

type nopSpanExporter struct{}

func (nopSpanExporter) ExportSpans(_ context.Context, _ []sdktrace.ReadOnlySpan) error { return nil }
func (nopSpanExporter) Shutdown(_ context.Context) error                               { return nil }

func buildTraceExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	params := resolveTraceExporterParams(cfg)
	params.Type = normalizeExporterType(params.Type)

	switch params.Type {
	case "console":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "none", "nop":
		return nopSpanExporter{}, nil
	default:
		return buildOTLPTraceExporter(ctx, params)
	}
}

func resolveTraceExporterParams(cfg *Config) exporterParams {
	params := baseExporterParams(cfg)
	params.Type = cfg.GetTracesExporter()
	if cfg.Traces != nil && cfg.Traces.Endpoint != "" {
		params.Endpoint = cfg.Traces.Endpoint
	}

	return params
}

func buildOTLPTraceExporter(ctx context.Context, params exporterParams) (sdktrace.SpanExporter, error) {
	opts := buildHTTPOptions(
		params,
		otlptracehttp.WithEndpoint,
		otlptracehttp.WithEndpointURL,
		otlptracehttp.WithHeaders,
		otlptracehttp.WithTimeout,
		otlptracehttp.WithInsecure,
		func() otlptracehttp.Option { return otlptracehttp.WithCompression(otlptracehttp.GzipCompression) },
	)

	return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
}

type nopLogExporter struct{}

func (nopLogExporter) Export(_ context.Context, _ []sdklog.Record) error { return nil }
func (nopLogExporter) Shutdown(_ context.Context) error                 { return nil }
func (nopLogExporter) ForceFlush(_ context.Context) error               { return nil }

func buildLogExporter(ctx context.Context, cfg *Config) (sdklog.Exporter, error) {
	params := resolveLogExporterParams(cfg)
	params.Type = normalizeExporterType(params.Type)

	switch params.Type {
	case "console":
		return stdoutlog.New(stdoutlog.WithPrettyPrint())
	case "none", "nop":
		return nopLogExporter{}, nil
	default:
		opts := buildHTTPOptions(
			params,
			otlploghttp.WithEndpoint,
			otlploghttp.WithEndpointURL,
			otlploghttp.WithHeaders,
			otlploghttp.WithTimeout,
			otlploghttp.WithInsecure,
			func() otlploghttp.Option { return otlploghttp.WithCompression(otlploghttp.GzipCompression) },
		)

		return otlploghttp.New(ctx, opts...)
	}
}

func resolveLogExporterParams(cfg *Config) exporterParams {
	params := baseExporterParams(cfg)
	if cfg.Logs != nil {
		if cfg.Logs.Exporter != "" {
			params.Type = cfg.Logs.Exporter
		}
		if cfg.Logs.Endpoint != "" {
			params.Endpoint = cfg.Logs.Endpoint
		}
	}

	return params
}

func buildMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	params := resolveMetricExporterParams(cfg)
	params.Type = normalizeExporterType(params.Type)

	switch params.Type {
	case "console":
		return stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	case "none", "nop":
		return newNopMetricExporter(), nil
	default:
		opts := buildHTTPOptions(
			params,
			otlpmetrichttp.WithEndpoint,
			otlpmetrichttp.WithEndpointURL,
			otlpmetrichttp.WithHeaders,
			otlpmetrichttp.WithTimeout,
			otlpmetrichttp.WithInsecure,
			func() otlpmetrichttp.Option { return otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression) },
		)

		return otlpmetrichttp.New(ctx, opts...)
	}
}

func resolveMetricExporterParams(cfg *Config) exporterParams {
	params := baseExporterParams(cfg)
	if cfg.Metrics != nil {
		if cfg.Metrics.Exporter != "" {
			params.Type = cfg.Metrics.Exporter
		}
		if cfg.Metrics.Endpoint != "" {
			params.Endpoint = cfg.Metrics.Endpoint
		}
	}

	return params
}

type nopMetricExporter struct{}

func newNopMetricExporter() sdkmetric.Exporter { return nopMetricExporter{} }

func (nopMetricExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error { return nil }
func (nopMetricExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (nopMetricExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}
func (nopMetricExporter) ForceFlush(_ context.Context) error { return nil }
func (nopMetricExporter) Shutdown(_ context.Context) error   { return nil }

func normalizeExporterType(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return "otlp"
	}
	switch v {
	case "stdout":
		return "console"
	case "noop":
		return "nop"
	default:
		return v
	}
}

func buildHTTPOptions[T any](
	params exporterParams,
	withEndpoint func(string) T,
	withEndpointURL func(string) T,
	withHeaders func(map[string]string) T,
	withTimeout func(time.Duration) T,
	withInsecure func() T,
	withCompression func() T,
) []T {
	var opts []T
	if parsed, err := url.Parse(params.Endpoint); err == nil && isHTTPScheme(parsed.Scheme) {
		opts = append(opts, withEndpointURL(params.Endpoint))
	} else {
		opts = append(opts, withEndpoint(params.Endpoint))
	}
	if len(params.Headers) > 0 {
		opts = append(opts, withHeaders(params.Headers))
	}
	if params.Timeout > 0 {
		opts = append(opts, withTimeout(params.Timeout))
	}
	if params.Insecure {
		opts = append(opts, withInsecure())
	}
	if params.Compression == "gzip" {
		opts = append(opts, withCompression())
	}

	return opts
}

func isHTTPScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}

// Package telemetry provides a config-driven OpenTelemetry tracing, logging,
// and metrics layer for incidentforge: struct-tag driven config, pluggable
// span naming, and context-aware span/log helpers used by the producer pool
// and the repair scheduler.
package telemetry

import (
	"slices"
	"strings"
	"time"
)

// Config configures the OpenTelemetry system. Environment variable names
// follow the OTel specification:
// https://opentelemetry.io/docs/specs/otel/configuration/sdk-environment-variables/
type Config struct {
	// Enabled controls whether telemetry export is active at all.
	Enabled *bool `yaml:"enabled" default:"false" env:"INCIDENTGEN_TELEMETRY_ENABLED"`

	// ServiceName identifies this process for telemetry purposes.
	ServiceName string `yaml:"serviceName" env:"OTEL_SERVICE_NAME" default:"incidentforge" validate:"required_if=Enabled true"`

	// Version is the service version (git commit or semantic version).
	Version string `yaml:"version" env:"OTEL_SERVICE_VERSION"`

	// Environment is the deployment environment (e.g. production, staging).
	Environment string `yaml:"environment" env:"OTEL_DEPLOYMENT_ENVIRONMENT" default:"development"`

	// ResourceAttributes adds arbitrary key=value pairs to the resource.
	ResourceAttributes map[string]string `yaml:"resourceAttributes,omitempty" env:"OTEL_RESOURCE_ATTRIBUTES"`

	// OTLP contains shared exporter settings used by all signals unless overridden.
	OTLP *OTLPConfig `yaml:"otlp,omitempty"`

	// Traces configures the tracing subsystem.
	Traces *TracesConfig `yaml:"traces,omitempty"`

	// Logs configures the OTel log bridge used for structured log lines
	// such as the repair scheduler's WOULD_FIX entries.
	Logs *LogsConfig `yaml:"logs,omitempty"`

	// Metrics configures the throughput/accounting meter.
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`

	// Propagation configures context propagation (W3C TraceContext, Baggage).
	Propagation *PropConfig `yaml:"propagation,omitempty"`
}

// OTLPConfig contains shared OTLP exporter settings.
type OTLPConfig struct {
	// Endpoint is the OTLP collector endpoint, a full URL (e.g. http://localhost:4318).
	Endpoint string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"http://localhost:4318"`

	// Insecure disables TLS for the OTLP connection.
	Insecure *bool `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`

	// Headers adds custom headers to OTLP requests.
	Headers map[string]string `yaml:"headers,omitempty" env:"OTEL_EXPORTER_OTLP_HEADERS"`

	// Timeout is the timeout for exporter operations.
	Timeout time.Duration `yaml:"timeout" env:"OTEL_EXPORTER_OTLP_TIMEOUT" default:"10s" validate:"gte=0"`

	// Compression sets the compression algorithm for OTLP. "gzip" or "none".
	Compression string `yaml:"compression,omitempty" env:"OTEL_EXPORTER_OTLP_COMPRESSION" validate:"omitempty,oneof=gzip none"`
}

// IsInsecure returns true if insecure connections are allowed.
func (c *OTLPConfig) IsInsecure() bool {
	return c == nil || c.Insecure == nil || *c.Insecure
}

// TracesConfig configures the tracing subsystem.
type TracesConfig struct {
	Enabled *bool `yaml:"enabled" default:"true"`

	// Exporter: "otlp", "console", or "none".
	Exporter string `yaml:"exporter" env:"OTEL_TRACES_EXPORTER" default:"otlp" validate:"oneof=otlp console none"`

	// Endpoint overrides OTLP.Endpoint for traces only.
	Endpoint string `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`

	Sampling *SamplingConfig `yaml:"sampling,omitempty"`
}

// IsEnabled reports whether tracing is active.
func (c *TracesConfig) IsEnabled() bool {
	return c == nil || c.Enabled == nil || *c.Enabled
}

// LogsConfig configures the OTel log bridge. Opt-in: defaults to off.
type LogsConfig struct {
	Enabled *bool `yaml:"enabled" default:"false"`

	Exporter string `yaml:"exporter" env:"OTEL_LOGS_EXPORTER" default:"otlp" validate:"oneof=otlp console none"`

	Endpoint string `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"`
}

// IsEnabled reports whether log export is active.
func (c *LogsConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// MetricsConfig configures the throughput/accounting meter. Opt-in.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled" default:"false"`

	Exporter string `yaml:"exporter" env:"OTEL_METRICS_EXPORTER" default:"otlp" validate:"oneof=otlp console none"`

	Endpoint string `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`

	// Interval is the periodic-reader export interval. Defaults to 15s.
	Interval time.Duration `yaml:"interval,omitempty" env:"OTEL_METRIC_EXPORT_INTERVAL" default:"15s" validate:"omitempty,gt=0"`
}

// IsEnabled reports whether metrics collection is active.
func (c *MetricsConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SamplingConfig configures the trace sampling strategy.
type SamplingConfig struct {
	// Sampler: one of the OTel standard sampler names.
	Sampler string `yaml:"sampler" env:"OTEL_TRACES_SAMPLER" default:"parentbased_always_on" validate:"oneof=always_on always_off traceidratio parentbased_always_on parentbased_always_off parentbased_traceidratio"`

	// SamplerArg is the ratio for ratio-based samplers, in [0,1].
	SamplerArg float64 `yaml:"samplerArg" env:"OTEL_TRACES_SAMPLER_ARG" default:"1.0" validate:"gte=0,lte=1"`
}

// PropConfig configures context propagation.
type PropConfig struct {
	// Propagators is a comma-separated list, e.g. "tracecontext,baggage".
	Propagators string `yaml:"propagators" env:"OTEL_PROPAGATORS" default:"tracecontext,baggage"`
}

// HasTraceContext reports whether the tracecontext propagator is enabled.
func (c *PropConfig) HasTraceContext() bool {
	if c == nil || c.Propagators == "" {
		return true
	}

	return containsPropagator(c.Propagators, "tracecontext")
}

// HasBaggage reports whether the baggage propagator is enabled.
func (c *PropConfig) HasBaggage() bool {
	if c == nil || c.Propagators == "" {
		return true
	}

	return containsPropagator(c.Propagators, "baggage")
}

func containsPropagator(propagators, name string) bool {
	return slices.Contains(splitPropagators(propagators), name)
}

func splitPropagators(propagators string) []string {
	if propagators == "" {
		return nil
	}

	var result []string
	for p := range strings.SplitSeq(propagators, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}

	return result
}

// IsEnabled reports whether telemetry is active at all.
func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// GetSamplingConfig returns the effective sampling config.
func (c *Config) GetSamplingConfig() *SamplingConfig {
	if c == nil || c.Traces == nil {
		return nil
	}

	return c.Traces.Sampling
}

// GetTracesExporter returns the effective traces exporter type.
func (c *Config) GetTracesExporter() string {
	if c == nil || c.Traces == nil || c.Traces.Exporter == "" {
		return "otlp"
	}

	return c.Traces.Exporter
}

// GetOTLPEndpoint returns the effective OTLP endpoint for traces.
func (c *Config) GetOTLPEndpoint() string {
	if c == nil {
		return "http://localhost:4318"
	}
	if c.Traces != nil && c.Traces.Endpoint != "" {
		return c.Traces.Endpoint
	}
	if c.OTLP != nil && c.OTLP.Endpoint != "" {
		return c.OTLP.Endpoint
	}

	return "http://localhost:4318"
}

// GetOTLPConfig returns the effective OTLP config, never nil.
func (c *Config) GetOTLPConfig() *OTLPConfig {
	if c == nil || c.OTLP == nil {
		return &OTLPConfig{}
	}

	return c.OTLP
}

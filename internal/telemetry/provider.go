// Package telemetry wires the heartbeat/dispatch/health loops to
// OpenTelemetry tracing (spec §4.7's per-tick span, §9's observability
// notes): a configurable tracer provider plus span-naming helpers for the
// core's own operations.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures the tracing subsystem.
type Config struct {
	// Enabled controls whether tracing is active. When false, a no-op
	// tracer is returned with zero overhead.
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the export backend: "none", "file", "stdout", "otlp".
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output path for the "file" exporter.
	FilePath string `mapstructure:"filePath"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`

	// SampleRate is the fraction of traces sampled; 1.0 samples all.
	SampleRate float64 `mapstructure:"sampleRate"`

	// ServiceName identifies this daemon instance in exported spans.
	ServiceName string `mapstructure:"serviceName"`
}

// DefaultConfig returns tracing disabled, matching the core's default of
// zero ambient overhead until an operator opts in.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Exporter:     "none",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
		ServiceName:  "taskctl",
	}
}

// Provider wraps the configured OpenTelemetry tracer provider.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	enabled  bool
}

// NewProvider builds a Provider from cfg. A disabled config returns a
// no-op tracer so every call site can use Provider unconditionally.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		p := noop.NewTracerProvider()
		return &Provider{tracer: p.Tracer("noop")}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("telemetry: filePath required for file exporter")
		}
		exporter, err = NewFileExporter(cfg.FilePath)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exporter, err = otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	case "none", "":
		exporter = nil
	default:
		return nil, fmt.Errorf("telemetry: unsupported exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating %s exporter: %w", cfg.Exporter, err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "taskctl"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return &Provider{provider: provider, tracer: provider.Tracer(serviceName), enabled: true}, nil
}

// Tracer returns the configured tracer. Safe to call even when tracing is
// disabled.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Enabled reports whether a real (non-noop) provider is active.
func (p *Provider) Enabled() bool { return p.enabled }

// Shutdown flushes pending spans and releases exporter resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

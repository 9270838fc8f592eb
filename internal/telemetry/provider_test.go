package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled, "tracing should be disabled by default")
	require.Equal(t, "none", cfg.Exporter)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, "taskctl", cfg.ServiceName)
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.False(t, provider.Enabled())

	tracer := provider.Tracer()
	require.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test-span")
	require.NotNil(t, span)
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_Enabled_WithFileExporter(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	provider, err := NewProvider(Config{
		Enabled:     true,
		Exporter:    "file",
		FilePath:    tracePath,
		SampleRate:  1.0,
		ServiceName: "test-service",
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "test-span")
	sc := span.SpanContext()
	require.True(t, sc.IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))

	_, err = os.Stat(tracePath)
	require.NoError(t, err, "trace file should exist")
}

func TestNewProvider_Enabled_WithStdoutExporter(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: true, Exporter: "stdout", SampleRate: 1.0})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "test-span")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_FileExporter_MissingPath(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "filePath required")
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: true, Exporter: "carrier-pigeon"})
	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "unsupported exporter")
}

func TestNewProvider_DefaultSampleRateAndServiceName(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	provider, err := NewProvider(Config{Enabled: true, Exporter: "file", FilePath: tracePath})
	require.NoError(t, err)
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestProvider_TracerCreatesValidChildSpans(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	provider, err := NewProvider(Config{Enabled: true, Exporter: "file", FilePath: tracePath})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	ctx, parent := provider.Tracer().Start(context.Background(), "parent-span")
	_, child := provider.Tracer().Start(ctx, "child-span")

	require.Equal(t, parent.SpanContext().TraceID(), child.SpanContext().TraceID())
	child.End()
	parent.End()
}

func TestStartTickSpan_SetsAttributes(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)

	_, span := provider.StartTickSpan(context.Background(), 7)
	require.NotNil(t, span)
	SetOK(span)
	span.End()
}

func TestRecordError_NilIsNoop(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)

	_, span := provider.Tracer().Start(context.Background(), "test-span")
	RecordError(span, nil)
	span.End()
}

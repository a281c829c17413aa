package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInit_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()

	if p.Tracer() == nil {
		t.Fatal("tracer should not be nil even when disabled")
	}

	// Should create no-op spans without error
	ctx, span := p.StartDispatch(context.Background(), "search_tools")
	if ctx == nil {
		t.Fatal("context should not be nil")
	}
	span.End()
}

func TestInit_ExporterNone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "none"

	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()

	if p.Tracer() == nil {
		t.Fatal("tracer should not be nil")
	}
}

func TestInit_ExporterStdout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "stdout"

	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()

	if p.tp == nil {
		t.Fatal("TracerProvider should not be nil for stdout exporter")
	}
}

func TestInit_InvalidExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "invalid"

	_, err := Init(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for invalid exporter")
	}
}

func TestInit_SampleRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "stdout"
	cfg.SampleRate = 0.5

	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()
}

func TestShutdown_NilProvider(t *testing.T) {
	p := &Provider{
		tracer: noop.NewTracerProvider().Tracer(tracerName),
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown should not error on nil provider: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.Exporter != "otlp" {
		t.Errorf("expected default exporter otlp, got %s", cfg.Exporter)
	}
	if cfg.Endpoint != "localhost:4317" {
		t.Errorf("expected default endpoint localhost:4317, got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected default sample rate 1.0, got %f", cfg.SampleRate)
	}
	if cfg.ServiceName != "semantic-router" {
		t.Errorf("expected default service name semantic-router, got %s", cfg.ServiceName)
	}
}

func TestSpanHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "stdout"

	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx := context.Background()

	// All span helpers should work without panicking
	tests := []struct {
		name string
		fn   func() (context.Context, trace.Span)
	}{
		{"StartDispatch", func() (context.Context, trace.Span) { return p.StartDispatch(ctx, "search_tools") }},
		{"StartEmbedQuery", func() (context.Context, trace.Span) { return p.StartEmbedQuery(ctx, "text-embedding-3-small") }},
		{"StartSearch", func() (context.Context, trace.Span) { return p.StartSearch(ctx, 5, "qdrant") }},
		{"StartAcquire", func() (context.Context, trace.Span) { return p.StartAcquire(ctx, "fs") }},
		{"StartCallTool", func() (context.Context, trace.Span) { return p.StartCallTool(ctx, "fs", "read_file", false) }},
		{"StartIndex", func() (context.Context, trace.Span) { return p.StartIndex(ctx, "fs", false) }},
		{"StartContentFetch", func() (context.Context, trace.Span) { return p.StartContentFetch(ctx, "ref-1", 0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, span := tt.fn()
			if c == nil {
				t.Error("context should not be nil")
			}
			if span == nil {
				t.Error("span should not be nil")
			}
			span.End()
		})
	}
}

func TestRecordResult(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "stdout"

	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()

	_, span := p.StartDispatch(context.Background(), "search_tools")
	// Should not panic
	RecordResult(span, "inline_text", 12*time.Millisecond)
	span.End()
}

func TestRecordError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter = "stdout"

	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()

	_, span := p.StartDispatch(context.Background(), "search_tools")
	RecordError(span, fmt.Errorf("test error"))
	span.End()
}

// Verify attribute is importable (compile-time check used in span helpers)
var _ = attribute.String("test", "value")

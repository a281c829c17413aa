// Package telemetry provides OpenTelemetry distributed tracing for the
// router. It instruments each semantic_router operation with spans for
// its component stages (search, lifecycle acquire, tool call, indexing),
// supports W3C Trace Context propagation, and exports to OTLP or stdout.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/semantic-router/router"

// Config holds tracing configuration.
type Config struct {
	// Enabled turns tracing on/off.
	Enabled bool

	// Exporter selects the trace exporter: "otlp", "stdout", or "none".
	Exporter string

	// Endpoint is the OTLP collector address (e.g., "localhost:4317").
	Endpoint string

	// SampleRate controls the sampling ratio (0.0 to 1.0).
	// 1.0 = sample everything, 0.1 = sample 10%.
	SampleRate float64

	// ServiceName overrides the default service name.
	ServiceName string

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool
}

// DefaultConfig returns tracing defaults (disabled).
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Exporter:    "otlp",
		Endpoint:    "localhost:4317",
		SampleRate:  1.0,
		ServiceName: "semantic-router",
		Insecure:    true,
	}
}

// Provider wraps the OTEL TracerProvider and exposes the router's span
// helpers.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Init sets up the global TracerProvider based on the config.
// Returns a Provider that must be shut down with Shutdown().
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		// Return a no-op provider
		return &Provider{
			tracer: trace.NewNoopTracerProvider().Tracer(tracerName),
		}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	case "none", "":
		return &Provider{
			tracer: trace.NewNoopTracerProvider().Tracer(tracerName),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %q (supported: otlp, stdout, none)", cfg.Exporter)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("0.1.0"),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set global provider and propagator
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:     tp,
		tracer: tp.Tracer(tracerName),
	}, nil
}

// Shutdown flushes pending spans and shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Tracer returns the router's tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// --- Span helpers for semantic_router operation stages ---

// StartDispatch creates a root span for one semantic_router call.
func (p *Provider) StartDispatch(ctx context.Context, operation string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "router.dispatch",
		trace.WithAttributes(attribute.String("router.operation", operation)),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartEmbedQuery creates a span for embedding a search_tools query.
func (p *Provider) StartEmbedQuery(ctx context.Context, model string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "router.embed_query",
		trace.WithAttributes(attribute.String("router.embedding.model", model)),
	)
}

// StartSearch creates a span for the vector-index search stage.
func (p *Provider) StartSearch(ctx context.Context, topK int, backend string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "router.search",
		trace.WithAttributes(
			attribute.Int("router.search.top_k", topK),
			attribute.String("router.search.backend", backend),
		),
	)
}

// StartAcquire creates a span for the supervisor acquiring (possibly
// lazily starting) a child server.
func (p *Provider) StartAcquire(ctx context.Context, serverName string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "router.supervisor.acquire",
		trace.WithAttributes(attribute.String("router.server_name", serverName)),
	)
}

// StartCallTool creates a span for one tools/call invocation on a child
// server.
func (p *Provider) StartCallTool(ctx context.Context, serverName, toolName string, inBackground bool) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "router.call_tool",
		trace.WithAttributes(
			attribute.String("router.server_name", serverName),
			attribute.String("router.tool_name", toolName),
			attribute.Bool("router.in_background", inBackground),
		),
	)
}

// StartIndex creates a span for one server's indexing pass.
func (p *Provider) StartIndex(ctx context.Context, serverName string, force bool) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "router.index",
		trace.WithAttributes(
			attribute.String("router.server_name", serverName),
			attribute.Bool("router.force", force),
		),
	)
}

// StartContentFetch creates a span for a get_content chunk read.
func (p *Provider) StartContentFetch(ctx context.Context, refID string, chunkIndex int) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "router.content_fetch",
		trace.WithAttributes(
			attribute.String("router.ref_id", refID),
			attribute.Int("router.chunk_index", chunkIndex),
		),
	)
}

// RecordResult adds outcome attributes to a span.
func RecordResult(span trace.Span, kind string, latency time.Duration) {
	span.SetAttributes(
		attribute.String("router.result.kind", kind),
		attribute.Int64("router.result.latency_ms", latency.Milliseconds()),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("error", true))
}

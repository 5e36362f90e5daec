// Package observability provides OpenTelemetry tracing, metrics, and
// audit logging for docquery.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name used for the docquery tracer.
	TracerName = "github.com/Ashok161/docquery"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "docquery")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "docquery",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	// If no endpoint, return no-op tracer
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown gracefully shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// SpanKind constants for docquery operations.
const (
	SpanKindIngest = "ingest"
	SpanKindLLM    = "llm"
	SpanKindIndex  = "index"
	SpanKindQuery  = "query"
)

// StartIngestSpan starts a span for a full ingestion run.
func StartIngestSpan(ctx context.Context, dir string, docCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "ingest.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("docquery.span.kind", SpanKindIngest),
			attribute.String("ingest.dir", dir),
			attribute.Int("ingest.document_count", docCount),
		),
	)
	return ctx, span
}

// RecordIngestResult records run totals on an ingestion span.
func RecordIngestResult(span trace.Span, succeeded, failed, chunksAdded int) {
	span.SetAttributes(
		attribute.Int("ingest.succeeded", succeeded),
		attribute.Int("ingest.failed", failed),
		attribute.Int("ingest.chunks_added", chunksAdded),
	)
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d documents failed", failed))
	}
}

// StartDocumentSpan starts a span for a single document.
func StartDocumentSpan(ctx context.Context, filename string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "ingest.document",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("docquery.span.kind", SpanKindIngest),
			attribute.String("document.filename", filename),
		),
	)
	return ctx, span
}

// RecordDocumentResult records a single document's outcome on a span.
func RecordDocumentResult(span trace.Span, chunks int, reason string) {
	span.SetAttributes(attribute.Int("document.chunks", chunks))
	if reason != "" {
		span.SetStatus(codes.Error, reason)
		span.SetAttributes(attribute.String("document.failure", reason))
	}
}

// StartLLMSpan starts a span for an embedding or generation call.
func StartLLMSpan(ctx context.Context, operation, model string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, fmt.Sprintf("llm.%s", operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("docquery.span.kind", SpanKindLLM),
			attribute.String("llm.operation", operation),
			attribute.String("llm.model", model),
		),
	)
	return ctx, span
}

// StartIndexSpan starts a span for a vector index operation.
func StartIndexSpan(ctx context.Context, operation, collection string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, fmt.Sprintf("index.%s", operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("docquery.span.kind", SpanKindIndex),
			attribute.String("index.operation", operation),
			attribute.String("index.collection", collection),
		),
	)
	return ctx, span
}

// StartQuerySpan starts a span for answering a question.
func StartQuerySpan(ctx context.Context) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "query.answer",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("docquery.span.kind", SpanKindQuery),
		),
	)
	return ctx, span
}

// RecordQueryResult records the answer outcome on a query span.
func RecordQueryResult(span trace.Span, matchCount int, model string, grounded int) {
	span.SetAttributes(
		attribute.Int("query.match_count", matchCount),
		attribute.String("query.model", model),
		attribute.Int("query.grounded", grounded),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

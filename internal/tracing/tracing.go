package tracing

import (
	"context"
	"fmt"

	"github.com/DMarby/image-resizer/internal/logger"
	"github.com/go-logr/stdr"
	"go.uber.org/zap"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerIdentifier = "github.com/DMarby/image-resizer/internal/tracing"

// Tracer wraps an opentelemetry tracer provider
type Tracer struct {
	ServiceName string
	Log         *logger.Logger

	trace.TracerProvider

	ShutdownFunc   func(context.Context) error
	TracerInstance trace.Tracer
}

// New creates a tracer that exports spans over otlp/grpc, configured through the standard OTEL_* environment variables
func New(ctx context.Context, log *logger.Logger, serviceName string) (*Tracer, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create opentelemetry grpc exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName))),
	)

	// Override the global otel logging
	otel.SetLogger(stdr.New(zap.NewStdLog(log.Desugar())))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Error(err)
	}))

	return &Tracer{
		serviceName,
		log,
		tp,
		tp.Shutdown,
		tp.Tracer(tracerIdentifier),
	}, nil
}

// Noop returns a tracer that discards all spans
func Noop(log *logger.Logger, serviceName string) *Tracer {
	tp := noop.NewTracerProvider()
	return &Tracer{
		serviceName,
		log,
		tp,
		func(context.Context) error {
			return nil
		},
		tp.Tracer(tracerIdentifier),
	}
}

// Start starts a new span
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.TracerInstance.Start(ctx, spanName, opts...)
}

// Shutdown flushes and stops the exporter
func (t *Tracer) Shutdown(ctx context.Context) {
	if err := t.ShutdownFunc(ctx); err != nil {
		t.Log.Errorf("failed to shutdown tracer: %s", err)
	}
}

// RecordError marks the span as failed
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// BlobName is the span attribute for the name of the blob being processed
func BlobName(name string) attribute.KeyValue {
	return attribute.String("blob.name", name)
}

// TraceInfo returns the trace and span id of the span in the context
func TraceInfo(ctx context.Context) (string, string) {
	spanContext := trace.SpanContextFromContext(ctx)
	return spanContext.TraceID().String(), spanContext.SpanID().String()
}

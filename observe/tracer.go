package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ToolMeta identifies a tool call in spans, metrics and logs.
type ToolMeta struct {
	Name     string
	Category string // "discovery", "prediction", ... ; may be empty
	Tags     []string
}

// SpanName is the name of the span covering one call, following the
// JSON-RPC method that triggered it.
func (m ToolMeta) SpanName() string {
	return "tools/call " + m.Name
}

// Tracer opens and closes one span per tool call. EndSpan never panics.
type Tracer interface {
	StartSpan(ctx context.Context, meta ToolMeta) (context.Context, trace.Span)
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer. A nil tracer records nothing.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return newNoopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta ToolMeta) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, 4)
	attrs = append(attrs,
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("tool.name", meta.Name),
	)
	if meta.Category != "" {
		attrs = append(attrs, attribute.String("tool.category", meta.Category))
	}
	if len(meta.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice("tool.tags", meta.Tags))
	}
	return t.tracer.Start(ctx, meta.SpanName(), trace.WithAttributes(attrs...))
}

// EndSpan marks failed calls as errors. A call its caller abandoned keeps
// an unset status.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	defer span.End()
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, context.Canceled):
		span.SetAttributes(attribute.Bool("tool.cancelled", true))
	default:
		span.SetAttributes(attribute.Bool("tool.error", true))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta ToolMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ error) { span.End() }

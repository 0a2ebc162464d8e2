package observe

import (
	"context"
	"errors"
	"time"
)

// ExecuteFunc runs one tool call.
type ExecuteFunc func(ctx context.Context, tool ToolMeta, input any) (any, error)

// Middleware records a span, the execution metrics and one log line for
// every tool call. Results and errors pass through unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components record nothing.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	m := &Middleware{tracer: tracer, metrics: metrics, logger: logger}
	if m.tracer == nil {
		m.tracer = newNoopTracer()
	}
	if m.metrics == nil {
		m.metrics = NopMetrics()
	}
	if m.logger == nil {
		m.logger = NopLogger()
	}
	return m
}

// MiddlewareFromObserver builds a Middleware on obs's tracer, meter and
// logger.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Wrap instruments fn. A call abandoned by its caller is logged as a
// warning with outcome "cancelled"; any other failure is an error.
func (m *Middleware) Wrap(fn ExecuteFunc) ExecuteFunc {
	return func(ctx context.Context, tool ToolMeta, input any) (any, error) {
		spanCtx, span := m.tracer.StartSpan(ctx, tool)
		start := time.Now()
		result, err := fn(spanCtx, tool, input)
		elapsed := time.Since(start)

		m.tracer.EndSpan(span, err)
		m.metrics.RecordExecution(spanCtx, tool, elapsed, err)

		log := m.logger.WithTool(tool)
		took := Field{Key: "duration_ms", Value: float64(elapsed.Microseconds()) / 1000}
		switch {
		case err == nil:
			log.Info(spanCtx, "tool execution completed", took, Field{Key: "outcome", Value: "ok"})
		case errors.Is(err, context.Canceled):
			log.Warn(spanCtx, "tool execution abandoned", took, Field{Key: "outcome", Value: "cancelled"})
		default:
			log.Error(spanCtx, "tool execution failed", took,
				Field{Key: "outcome", Value: "error"}, Field{Key: "error", Value: err.Error()})
		}
		return result, err
	}
}

package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records execution metrics for tools.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordExecution records a tool execution with duration and error status.
	RecordExecution(ctx context.Context, meta ToolMeta, duration time.Duration, err error)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates tool execution instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"tool.exec.total",
		metric.WithDescription("Total number of tool executions"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"tool.exec.errors",
		metric.WithDescription("Total number of tool execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"tool.exec.duration_ms",
		metric.WithDescription("Tool execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

// RecordExecution records metrics for a tool execution.
func (m *metricsImpl) RecordExecution(ctx context.Context, meta ToolMeta, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("tool.name", meta.Name)}
	if meta.Category != "" {
		attrs = append(attrs, attribute.String("tool.category", meta.Category))
	}
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

// AuthMetrics counts authentication outcomes, authorization decisions and
// key set fetches. A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	authentications metric.Int64Counter
	decisions       metric.Int64Counter
	keyFetches      metric.Int64Counter
}

// NewAuthMetrics creates the auth instruments on meter. A nil meter uses
// a no-op provider.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("noop")
	}

	authentications, err := meter.Int64Counter(
		"auth.authentications",
		metric.WithDescription("Authentication attempts by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	decisions, err := meter.Int64Counter(
		"rbac.decisions",
		metric.WithDescription("Authorization decisions per role and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	keyFetches, err := meter.Int64Counter(
		"auth.jwks.fetches",
		metric.WithDescription("JWKS fetch attempts by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		authentications: authentications,
		decisions:       decisions,
		keyFetches:      keyFetches,
	}, nil
}

// RecordAuthentication counts one authentication attempt.
func (m *AuthMetrics) RecordAuthentication(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.authentications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAuthorization counts one decision for one role.
func (m *AuthMetrics) RecordAuthorization(ctx context.Context, role, tool, decision string) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("tool.name", tool),
		attribute.String("decision", decision),
	))
}

// RecordKeySetFetch counts one JWKS fetch.
func (m *AuthMetrics) RecordKeySetFetch(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.keyFetches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// NopMetrics returns tool metrics that record nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordExecution(context.Context, ToolMeta, time.Duration, error) {}

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

const operatorScopeName = "github.com/mesh-intelligence/lawcascade/operator"

// OperatorMetrics counts operator outcomes per entry.
type OperatorMetrics struct {
	entries metric.Int64Counter
	dur     metric.Float64Histogram
}

// NewOperatorMetrics creates the cascade.operator.* instruments on m. A nil
// meter uses the global provider.
func NewOperatorMetrics(m metric.Meter) *OperatorMetrics {
	if m == nil {
		m = Meter(operatorScopeName)
	}
	entries, _ := m.Int64Counter("cascade.operator.entries",
		metric.WithDescription("Entries handled by batch operators, by result status"),
	)
	dur, _ := m.Float64Histogram("cascade.operator.entry.duration",
		metric.WithDescription("Per-entry operator duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &OperatorMetrics{entries: entries, dur: dur}
}

// Record counts one entry result.
func (m *OperatorMetrics) Record(ctx context.Context, op types.OperatorKind, status types.ResultStatus, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("cascade.operator", string(op)),
		attribute.String("cascade.result", string(status)),
	)
	m.entries.Add(ctx, 1, attrs)
	m.dur.Record(ctx, float64(d.Milliseconds()), attrs)
}

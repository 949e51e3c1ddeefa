package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mesh-intelligence/lawcascade/internal/testutil"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

func TestWrapQueueDisabled(t *testing.T) {
	t.Setenv(EnvEnabled, "")
	q := testutil.NewStore(t).Queue()
	assert.Equal(t, types.Queue(q), WrapQueue(q))
}

func TestInitDisabled(t *testing.T) {
	t.Setenv(EnvEnabled, "false")
	require.NoError(t, Init(context.Background(), "cascade", "test"))
	require.NoError(t, Shutdown(context.Background()))
}

func sumInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestInstrumentedQueue(t *testing.T) {
	ctx := context.Background()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	q := NewInstrumentedQueue(testutil.NewStore(t).Queue(), tp.Tracer("test"), mp.Meter("test"))

	out, err := q.ApplyLayer(ctx, types.LayerWrite{
		SessionID:    "s1",
		Layer:        1,
		MaxAutoLayer: types.DefaultMaxAutoLayer,
		Effects:      []types.Effect{{AffectedLaw: "A", SourceLaw: "S", Kind: types.UpdateReparse}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	_, err = q.Get(ctx, "no-such-entry")
	assert.ErrorIs(t, err, types.ErrNotFound)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "queue.ApplyLayer", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "queue.Get", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(2), sumInt64(t, rm, "cascade.queue.operations"))
	assert.Equal(t, int64(1), sumInt64(t, rm, "cascade.queue.errors"))
}

func TestOperatorMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m := NewOperatorMetrics(mp.Meter("test"))
	m.Record(ctx, types.OperatorReparse, types.ResultSuccess, 5*time.Millisecond)
	m.Record(ctx, types.OperatorReparse, types.ResultError, time.Millisecond)

	var nilMetrics *OperatorMetrics
	nilMetrics.Record(ctx, types.OperatorReparse, types.ResultSuccess, 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(2), sumInt64(t, rm, "cascade.operator.entries"))
}

func TestOperatorMetricsDefaultScope(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	NewOperatorMetrics(nil).Record(ctx, types.OperatorImport, types.ResultSuccess, time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, operatorScopeName, rm.ScopeMetrics[0].Scope.Name)
	assert.Equal(t, int64(1), sumInt64(t, rm, "cascade.operator.entries"))
}

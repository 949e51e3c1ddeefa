package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

const queueScopeName = "github.com/mesh-intelligence/lawcascade/queue"

// Compile-time interface check.
var _ types.Queue = (*InstrumentedQueue)(nil)

// InstrumentedQueue decorates a types.Queue with a span per call and the
// cascade.queue.* metrics.
type InstrumentedQueue struct {
	inner  types.Queue
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapQueue returns q instrumented with the global providers, or q itself
// when telemetry is disabled.
func WrapQueue(q types.Queue) types.Queue {
	if !Enabled() {
		return q
	}
	return NewInstrumentedQueue(q, Tracer(queueScopeName), Meter(queueScopeName))
}

// NewInstrumentedQueue decorates q using the given tracer and meter.
func NewInstrumentedQueue(q types.Queue, tracer trace.Tracer, m metric.Meter) *InstrumentedQueue {
	ops, _ := m.Int64Counter("cascade.queue.operations",
		metric.WithDescription("Queue operations executed"),
	)
	dur, _ := m.Float64Histogram("cascade.queue.operation.duration",
		metric.WithDescription("Queue operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("cascade.queue.errors",
		metric.WithDescription("Queue operation errors"),
	)
	return &InstrumentedQueue{inner: q, tracer: tracer, ops: ops, dur: dur, errs: errs}
}

func (q *InstrumentedQueue) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time, []attribute.KeyValue) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := q.tracer.Start(ctx, "queue."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	q.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now(), all
}

func (q *InstrumentedQueue) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs []attribute.KeyValue) {
	q.dur.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func sessionAttr(id string) attribute.KeyValue {
	return attribute.String("cascade.session_id", id)
}

func (q *InstrumentedQueue) ApplyLayer(ctx context.Context, w types.LayerWrite) ([]types.UpsertOutcome, error) {
	ctx, span, t, attrs := q.op(ctx, "ApplyLayer",
		sessionAttr(w.SessionID),
		attribute.Int("cascade.layer", w.Layer),
		attribute.Int("cascade.effects", len(w.Effects)),
	)
	v, err := q.inner.ApplyLayer(ctx, w)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

func (q *InstrumentedQueue) Get(ctx context.Context, id string) (*types.AffectedLaw, error) {
	ctx, span, t, attrs := q.op(ctx, "Get", attribute.String("cascade.entry_id", id))
	v, err := q.inner.Get(ctx, id)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

func (q *InstrumentedQueue) List(ctx context.Context, f types.Filter) ([]*types.AffectedLaw, error) {
	ctx, span, t, attrs := q.op(ctx, "List", sessionAttr(f.SessionID))
	v, err := q.inner.List(ctx, f)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

func (q *InstrumentedQueue) Summarize(ctx context.Context, f types.Filter) (types.Summary, error) {
	ctx, span, t, attrs := q.op(ctx, "Summarize", sessionAttr(f.SessionID))
	v, err := q.inner.Summarize(ctx, f)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

func (q *InstrumentedQueue) SessionSources(ctx context.Context, sessionID string) ([]types.LawID, error) {
	ctx, span, t, attrs := q.op(ctx, "SessionSources", sessionAttr(sessionID))
	v, err := q.inner.SessionSources(ctx, sessionID)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

func (q *InstrumentedQueue) Sessions(ctx context.Context) ([]types.SessionSummary, error) {
	ctx, span, t, attrs := q.op(ctx, "Sessions")
	v, err := q.inner.Sessions(ctx)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

func (q *InstrumentedQueue) Claim(ctx context.Context, id, token string, ttl time.Duration) (*types.AffectedLaw, error) {
	ctx, span, t, attrs := q.op(ctx, "Claim", attribute.String("cascade.entry_id", id))
	v, err := q.inner.Claim(ctx, id, token, ttl)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

func (q *InstrumentedQueue) Complete(ctx context.Context, id, token string, status types.Status) error {
	ctx, span, t, attrs := q.op(ctx, "Complete",
		attribute.String("cascade.entry_id", id),
		attribute.String("cascade.status", string(status)),
	)
	err := q.inner.Complete(ctx, id, token, status)
	q.done(ctx, span, t, err, attrs)
	return err
}

func (q *InstrumentedQueue) Release(ctx context.Context, id, token, lastError string) error {
	ctx, span, t, attrs := q.op(ctx, "Release", attribute.String("cascade.entry_id", id))
	err := q.inner.Release(ctx, id, token, lastError)
	q.done(ctx, span, t, err, attrs)
	return err
}

func (q *InstrumentedQueue) Transition(ctx context.Context, ids []string, from, to types.Status) (int, error) {
	ctx, span, t, attrs := q.op(ctx, "Transition",
		attribute.Int("cascade.entries", len(ids)),
		attribute.String("cascade.from", string(from)),
		attribute.String("cascade.to", string(to)),
	)
	v, err := q.inner.Transition(ctx, ids, from, to)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

func (q *InstrumentedQueue) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span, t, attrs := q.op(ctx, "Delete", attribute.String("cascade.entry_id", id))
	v, err := q.inner.Delete(ctx, id)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

func (q *InstrumentedQueue) ClearSession(ctx context.Context, sessionID string) (int, error) {
	ctx, span, t, attrs := q.op(ctx, "ClearSession", sessionAttr(sessionID))
	v, err := q.inner.ClearSession(ctx, sessionID)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

func (q *InstrumentedQueue) ClearProcessed(ctx context.Context, sessionID string) (int, error) {
	ctx, span, t, attrs := q.op(ctx, "ClearProcessed", sessionAttr(sessionID))
	v, err := q.inner.ClearProcessed(ctx, sessionID)
	q.done(ctx, span, t, err, attrs)
	return v, err
}

// Package discovery walks the law relationship graph outward from a
// session's source laws, one breadth-first layer at a time, and records
// every affected law in the queue.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mesh-intelligence/lawcascade/internal/telemetry"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

const scopeName = "github.com/mesh-intelligence/lawcascade/discovery"

// Resolver finds the effects of a frontier of laws.
type Resolver interface {
	FindAffected(ctx context.Context, ids []types.LawID) (*types.Resolution, error)
}

// Request describes one discovery run.
type Request struct {
	SessionID string
	Sources   []types.LawID

	// StartLayer is the layer of the first write; zero means 1.
	StartLayer int

	// MaxAutoLayer overrides the engine default when positive.
	MaxAutoLayer int
}

// Engine runs layered discovery.
type Engine struct {
	resolver     Resolver
	queue        types.Queue
	maxAutoLayer int
	policy       types.MissingPolicy
	newBackOff   func() backoff.BackOff
	logger       *slog.Logger
	tracer       trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAutoLayer sets the deepest layer created pending.
func WithMaxAutoLayer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAutoLayer = n
		}
	}
}

// WithMissingPolicy sets how laws absent from the law store are queued.
func WithMissingPolicy(p types.MissingPolicy) Option {
	return func(e *Engine) {
		if p.Valid() {
			e.policy = p
		}
	}
}

// WithRetryMaxElapsed bounds the exponential backoff applied to resolver
// and queue calls.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.newBackOff = func() backoff.BackOff {
				bo := backoff.NewExponentialBackOff()
				bo.MaxElapsedTime = d
				return bo
			}
		}
	}
}

// WithBackOff replaces the retry policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newBackOff = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Engine that resolves through r and writes to q.
func New(r Resolver, q types.Queue, opts ...Option) *Engine {
	e := &Engine{
		resolver:     r,
		queue:        q,
		maxAutoLayer: types.DefaultMaxAutoLayer,
		policy:       types.MissingQueue,
		logger:       slog.Default(),
		tracer:       telemetry.Tracer(scopeName),
	}
	WithRetryMaxElapsed(types.DefaultRetryMaxElapsed)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxAutoLayer returns the configured depth cap.
func (e *Engine) MaxAutoLayer() int { return e.maxAutoLayer }

// Discover expands req.Sources layer by layer until the frontier is empty or
// the layer ceiling is passed. The ceiling is MaxAutoLayer+1, or StartLayer
// when a continuation already starts beyond it, so every run writes at
// least its first layer. Each layer is written in one
// queue transaction; a layer that cannot be resolved or written after
// retries fails the call and leaves that layer unwritten. On error the
// returned report covers the layers committed before the failure.
func (e *Engine) Discover(ctx context.Context, req Request) (*types.DiscoveryReport, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}
	start := req.StartLayer
	if start == 0 {
		start = 1
	}
	maxAuto := e.maxAutoLayer
	if req.MaxAutoLayer > 0 {
		maxAuto = req.MaxAutoLayer
	}
	ceiling := max(maxAuto+1, start)
	sources := types.UniqueLawIDs(req.Sources)

	ctx, span := e.tracer.Start(ctx, "discovery.Discover", trace.WithAttributes(
		attribute.String("cascade.session_id", req.SessionID),
		attribute.Int("cascade.sources", len(sources)),
		attribute.Int("cascade.start_layer", start),
	))
	defer span.End()

	report := &types.DiscoveryReport{
		SessionID:  req.SessionID,
		Sources:    sources,
		StartLayer: start,
		Layers:     []types.LayerReport{},
		Missing:    []types.MissingLaw{},
	}

	var known []types.LawID
	if err := e.retry(ctx, "session sources", func() error {
		var err error
		known, err = e.queue.SessionSources(ctx, req.SessionID)
		return err
	}); err != nil {
		return e.fail(span, report, fmt.Errorf("reading session sources: %w", err))
	}
	guard := make(lawSet, len(known)+len(sources))
	guard.add(known...)
	guard.add(sources...)

	frontier := sources
	for layer := start; ; layer++ {
		if len(frontier) == 0 {
			report.StoppedBy = types.StopFrontierEmpty
			break
		}
		if layer > ceiling {
			report.StoppedBy = types.StopDepthCeiling
			break
		}

		guard.add(frontier...)
		lr, missing, next, err := e.runLayer(ctx, req.SessionID, layer, maxAuto, frontier, guard)
		if err != nil {
			return e.fail(span, report, fmt.Errorf("layer %d: %w", layer, err))
		}
		report.Layers = append(report.Layers, *lr)
		report.Missing = append(report.Missing, missing...)
		frontier = next
	}

	e.logger.Info("discovery finished",
		"session_id", req.SessionID,
		"layers", len(report.Layers),
		"inserted", report.Inserted(),
		"merged", report.Merged(),
		"missing", len(report.Missing),
		"stopped_by", report.StoppedBy,
	)
	span.SetAttributes(attribute.String("cascade.stopped_by", string(report.StoppedBy)))
	return report, nil
}

func (e *Engine) validate(req Request) error {
	if req.SessionID == "" {
		return types.NewValidationError("discover", "session_id is required", types.ErrInvalidSession)
	}
	if len(types.UniqueLawIDs(req.Sources)) == 0 {
		return types.NewValidationError("discover", "at least one source law is required", types.ErrInvalidLawID)
	}
	for _, id := range req.Sources {
		if err := id.Validate(); err != nil {
			return types.NewValidationError("discover", fmt.Sprintf("invalid source law %q", id), err)
		}
	}
	if req.StartLayer < 0 {
		return types.NewValidationError("discover", "start layer must be positive", types.ErrInvalidLayer)
	}
	if req.MaxAutoLayer < 0 {
		return types.NewValidationError("discover", "max_auto_layer must be positive", types.ErrMaxAutoLayerInvalid)
	}
	return nil
}

// runLayer resolves one frontier and writes its effects. It returns the
// layer counts, the missing laws seen and the next frontier.
func (e *Engine) runLayer(ctx context.Context, sessionID string, layer, maxAuto int, frontier []types.LawID, guard lawSet) (*types.LayerReport, []types.MissingLaw, []types.LawID, error) {
	ctx, span := e.tracer.Start(ctx, "discovery.layer", trace.WithAttributes(
		attribute.Int("cascade.layer", layer),
		attribute.Int("cascade.frontier", len(frontier)),
	))
	defer span.End()

	var res *types.Resolution
	if err := e.retry(ctx, "resolve", func() error {
		var err error
		res, err = e.resolver.FindAffected(ctx, frontier)
		return err
	}); err != nil {
		span.RecordError(err)
		return nil, nil, nil, fmt.Errorf("resolving frontier: %w", err)
	}

	w := types.LayerWrite{
		SessionID:    sessionID,
		Layer:        layer,
		MaxAutoLayer: maxAuto,
		Effects:      append(res.Effects(), missingEffects(res.Missing)...),
		SkipMissing:  e.policy == types.MissingSkip,
	}

	var outcomes []types.UpsertOutcome
	if err := e.retry(ctx, "apply layer", func() error {
		var err error
		outcomes, err = e.queue.ApplyLayer(ctx, w)
		return err
	}); err != nil {
		span.RecordError(err)
		return nil, nil, nil, fmt.Errorf("writing layer: %w", err)
	}

	lr := &types.LayerReport{Layer: layer, Frontier: frontier}
	var next []types.LawID
	queued := make(lawSet)
	for _, o := range outcomes {
		switch o.Action {
		case types.ActionInserted:
			lr.Inserted++
			switch o.Status {
			case types.StatusDeferred:
				lr.Deferred++
			case types.StatusSkipped:
				lr.Skipped++
			}
		case types.ActionMerged:
			lr.Merged++
		case types.ActionUnchanged:
			lr.Unchanged++
		case types.ActionRecorded:
			lr.Recorded++
			continue
		}
		if o.Missing || guard[o.AffectedLaw] || queued[o.AffectedLaw] {
			continue
		}
		queued.add(o.AffectedLaw)
		next = append(next, o.AffectedLaw)
	}

	e.logger.Debug("discovery layer written",
		"session_id", sessionID,
		"layer", layer,
		"frontier", len(frontier),
		"inserted", lr.Inserted,
		"merged", lr.Merged,
		"unchanged", lr.Unchanged,
		"recorded", lr.Recorded,
		"deferred", lr.Deferred,
		"missing", len(res.Missing),
	)
	return lr, res.Missing, next, nil
}

// missingEffects turns referenced-but-absent laws into effects flagged for
// the importer. Missing inputs have no referencing law and yield nothing.
func missingEffects(missing []types.MissingLaw) []types.Effect {
	var out []types.Effect
	for _, m := range missing {
		if m.ReferencedBy == "" || !m.Kind.Valid() || m.Law.Validate() != nil {
			continue
		}
		out = append(out, types.Effect{AffectedLaw: m.Law, SourceLaw: m.ReferencedBy, Kind: m.Kind, Missing: true})
	}
	return out
}

func (e *Engine) fail(span trace.Span, report *types.DiscoveryReport, err error) (*types.DiscoveryReport, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return report, err
}

// retry runs op with exponential backoff. Validation and context errors are
// permanent.
func (e *Engine) retry(ctx context.Context, what string, op func() error) error {
	bo := backoff.WithContext(e.newBackOff(), ctx)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		e.logger.Warn("discovery step failed, retrying", "step", what, "attempt", attempt, "error", err)
		return err
	}, bo)
}

func isPermanent(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case types.IsValidation(err):
		return true
	case errors.Is(err, types.ErrInvalidSession),
		errors.Is(err, types.ErrInvalidLawID),
		errors.Is(err, types.ErrInvalidLayer),
		errors.Is(err, types.ErrInvalidUpdateType):
		return true
	}
	return false
}

// lawSet is the cycle guard: laws that must not re-enter a frontier.
type lawSet map[types.LawID]bool

func (s lawSet) add(ids ...types.LawID) {
	for _, id := range ids {
		s[id] = true
	}
}

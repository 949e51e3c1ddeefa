package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/lawcascade/internal/telemetry"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

const (
	msgBatchCancelled = "batch cancelled"
	msgClaimed        = "entry is claimed by another run"
	msgNotFound       = "entry not found"

	// settleTimeout bounds the queue write that completes or releases an
	// entry.
	settleTimeout = 10 * time.Second
)

// Runner applies an operator to a list of entries.
type Runner struct {
	queue        types.Queue
	workers      int
	entryTimeout time.Duration
	claimTTL     time.Duration
	metrics      *telemetry.OperatorMetrics
	logger       *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers bounds the number of entries handled concurrently.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithEntryTimeout bounds the time spent on one entry.
func WithEntryTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.entryTimeout = d
		}
	}
}

// WithClaimTTL sets how long a claim holds before another run may take it.
func WithClaimTTL(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.claimTTL = d
		}
	}
}

// WithMetrics sets the operator metrics.
func WithMetrics(m *telemetry.OperatorMetrics) RunnerOption {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner returns a Runner over q.
func NewRunner(q types.Queue, opts ...RunnerOption) *Runner {
	r := &Runner{
		queue:        q,
		workers:      types.DefaultWorkers,
		entryTimeout: types.DefaultEntryTimeout,
		claimTTL:     types.DefaultClaimTTL,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = telemetry.NewOperatorMetrics(nil)
	}
	return r
}

// Run applies op to the entries named by ids. Results keep the order of
// ids, with duplicates removed.
//
// Entries whose update type op does not accept fail the whole call with a
// *types.ValidationError before any entry is touched. Per-entry failures
// are reported in the results and leave the entry pending. Cancelling ctx
// stops dispatch: entries already started run to completion under their own
// timeout, and the rest are reported skipped.
func (r *Runner) Run(ctx context.Context, op Operator, ids []string) (*types.BatchResult, error) {
	if err := op.Ready(); err != nil {
		return nil, err
	}
	ids = uniqueIDs(ids)

	entries, err := r.load(ctx, op, ids)
	if err != nil {
		return nil, err
	}

	batch := &types.BatchResult{Operator: op.Kind(), Results: make([]types.EntryResult, len(ids))}
	for i, id := range ids {
		batch.Results[i] = types.EntryResult{ID: id, Status: types.ResultSkipped, Message: msgBatchCancelled}
		if e := entries[i]; e != nil {
			batch.Results[i].AffectedLaw = e.AffectedLaw
			batch.Results[i].Layer = e.Layer
		} else {
			batch.Results[i].Status = types.ResultError
			batch.Results[i].Message = msgNotFound
		}
	}

	sem := make(chan struct{}, r.workers)
	var g errgroup.Group
dispatch:
	for i, e := range entries {
		if e == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		g.Go(func() error {
			defer func() { <-sem }()
			batch.Results[i] = r.runEntry(ctx, op, e)
			return nil
		})
	}
	_ = g.Wait()

	batch.Tally()
	r.logger.Info("batch finished",
		"operator", op.Kind(),
		"total", batch.Total,
		"success", batch.Success,
		"errors", batch.Errors,
		"unchanged", batch.Unchanged,
		"exists", batch.Exists,
		"skipped", batch.Skipped,
	)
	return batch, nil
}

// load reads every entry and checks its update type. Missing entries are
// left nil.
func (r *Runner) load(ctx context.Context, op Operator, ids []string) ([]*types.AffectedLaw, error) {
	entries := make([]*types.AffectedLaw, len(ids))
	var mismatched []string
	for i, id := range ids {
		e, err := r.queue.Get(ctx, id)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading entry %s: %w", id, err)
		}
		if !op.Accepts(e.UpdateType) {
			mismatched = append(mismatched, id)
		}
		entries[i] = e
	}
	if len(mismatched) > 0 {
		verr := types.NewValidationError(string(op.Kind()),
			"operator does not accept the update type of every entry", types.ErrKindMismatch)
		verr.EntryIDs = mismatched
		return nil, verr
	}
	return entries, nil
}

// runEntry claims, applies and settles one entry. It runs detached from
// batch cancellation, bounded by the entry timeout.
func (r *Runner) runEntry(parent context.Context, op Operator, e *types.AffectedLaw) types.EntryResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.entryTimeout)
	defer cancel()

	res := types.EntryResult{ID: e.ID, AffectedLaw: e.AffectedLaw, Layer: e.Layer}
	log := r.logger.With("operator", op.Kind(), "entry_id", e.ID, "affected_law", e.AffectedLaw)
	defer func() {
		r.metrics.Record(ctx, op.Kind(), res.Status, time.Since(start))
	}()

	token := uuid.NewString()
	claimed, err := r.queue.Claim(ctx, e.ID, token, r.claimTTL)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrNotClaimable):
		if claimed != nil && claimed.Status == types.StatusProcessed {
			res.Status = op.DoneStatus()
			res.Message = "already processed"
		} else {
			res.Status = types.ResultSkipped
			res.Message = fmt.Sprintf("entry is %s", statusOf(claimed))
		}
		return res
	case errors.Is(err, types.ErrClaimed):
		res.Status, res.Message = types.ResultSkipped, msgClaimed
		return res
	case errors.Is(err, types.ErrNotFound):
		res.Status, res.Message = types.ResultError, msgNotFound
		return res
	default:
		res.Status, res.Message = types.ResultError, fmt.Sprintf("claiming entry: %v", err)
		log.Error("claim failed", "error", err)
		return res
	}

	out, applyErr := op.Apply(ctx, claimed)
	if applyErr != nil {
		res.Status, res.Message = types.ResultError, applyErr.Error()
		log.Warn("entry failed", "error", applyErr)
		if err := r.settle(parent, func(ctx context.Context) error {
			return r.queue.Release(ctx, e.ID, token, applyErr.Error())
		}); err != nil {
			log.Error("releasing failed entry", "error", err)
		}
		return res
	}

	res.Status = out.Status
	res.Message = out.Message
	res.Added = out.Added
	res.NewTotal = out.NewTotal
	res.AnnotationCount = out.AnnotationCount

	err = r.settle(parent, func(ctx context.Context) error {
		if out.Complete {
			return r.queue.Complete(ctx, e.ID, token, types.StatusProcessed)
		}
		return r.queue.Release(ctx, e.ID, token, out.Note)
	})
	if err != nil {
		log.Error("recording entry outcome", "error", err)
		res.Status = types.ResultError
		res.Message = fmt.Sprintf("recording outcome: %v", err)
		return res
	}
	log.Debug("entry done", "result", res.Status)
	return res
}

// settle records an entry's outcome under its own deadline, so an entry
// that used up its timeout is still completed or released.
func (r *Runner) settle(parent context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), settleTimeout)
	defer cancel()
	return fn(ctx)
}

func statusOf(e *types.AffectedLaw) types.Status {
	if e == nil {
		return ""
	}
	return e.Status
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Package cascade coordinates discovery and batch operators for scrape
// sessions. It is the single entry point used by the CLI and the admin API.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mesh-intelligence/lawcascade/internal/discovery"
	"github.com/mesh-intelligence/lawcascade/internal/operator"
	"github.com/mesh-intelligence/lawcascade/internal/resolver"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Coordinator owns the queue, the law store and the collaborators of one
// cascade deployment.
type Coordinator struct {
	queue    types.Queue
	laws     types.LawStore
	reparser types.Reparser
	importer types.Importer
	engine   *discovery.Engine
	runner   *operator.Runner
	logger   *slog.Logger
}

type options struct {
	cfg        types.Config
	reparser   types.Reparser
	importer   types.Importer
	logger     *slog.Logger
	engineOpts []discovery.Option
	runnerOpts []operator.RunnerOption
}

// Option configures a Coordinator.
type Option func(*options)

// WithConfig applies the engine and worker settings of cfg.
func WithConfig(cfg types.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithReparser sets the collaborator used by the reparse operator.
func WithReparser(r types.Reparser) Option {
	return func(o *options) { o.reparser = r }
}

// WithImporter sets the collaborator used by the import operator.
func WithImporter(i types.Importer) Option {
	return func(o *options) { o.importer = i }
}

// WithLogger sets the logger passed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEngineOptions appends discovery options applied after the config.
func WithEngineOptions(opts ...discovery.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// WithRunnerOptions appends runner options applied after the config.
func WithRunnerOptions(opts ...operator.RunnerOption) Option {
	return func(o *options) { o.runnerOpts = append(o.runnerOpts, opts...) }
}

// New wires a Coordinator over queue and laws.
func New(queue types.Queue, laws types.LawStore, opts ...Option) *Coordinator {
	o := &options{cfg: types.DefaultConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	cfg := o.cfg

	res := resolver.New(laws,
		resolver.WithConcurrency(cfg.ResolverConcurrency),
		resolver.WithLogger(o.logger),
	)

	engine := discovery.New(res, queue, append([]discovery.Option{
		discovery.WithMaxAutoLayer(cfg.MaxAutoLayer),
		discovery.WithMissingPolicy(cfg.MissingPolicy),
		discovery.WithRetryMaxElapsed(cfg.RetryMaxElapsed),
		discovery.WithLogger(o.logger),
	}, o.engineOpts...)...)

	runner := operator.NewRunner(queue, append([]operator.RunnerOption{
		operator.WithWorkers(cfg.Workers),
		operator.WithEntryTimeout(cfg.EntryTimeout),
		operator.WithClaimTTL(cfg.ClaimTTL),
		operator.WithLogger(o.logger),
	}, o.runnerOpts...)...)

	return &Coordinator{
		queue:    queue,
		laws:     laws,
		reparser: o.reparser,
		importer: o.importer,
		engine:   engine,
		runner:   runner,
		logger:   o.logger,
	}
}

// StartDiscovery runs discovery from a session's source laws.
func (c *Coordinator) StartDiscovery(ctx context.Context, sessionID string, sources []types.LawID) (*types.DiscoveryReport, error) {
	c.logger.Info("starting discovery", "session_id", sessionID, "sources", len(sources))
	return c.engine.Discover(ctx, discovery.Request{SessionID: sessionID, Sources: sources})
}

// ContinueDiscovery resumes discovery from the laws of processed entries,
// one run per entry layer starting at layer+1.
func (c *Coordinator) ContinueDiscovery(ctx context.Context, sessionID string, entryIDs []string) (*types.DiscoveryReport, error) {
	if sessionID == "" {
		return nil, types.NewValidationError("continue", "session_id is required", types.ErrInvalidSession)
	}
	if len(entryIDs) == 0 {
		return nil, types.NewValidationError("continue", "at least one entry is required", types.ErrInvalidID)
	}

	var (
		entries []*types.AffectedLaw
		bad     []string
	)
	for _, id := range entryIDs {
		e, err := c.queue.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading entry %s: %w", id, err)
		}
		if e.SessionID != sessionID || e.Status != types.StatusProcessed {
			bad = append(bad, id)
			continue
		}
		entries = append(entries, e)
	}
	if len(bad) > 0 {
		verr := types.NewValidationError("continue", "entries must be processed entries of the session", types.ErrInvalidTransition)
		verr.EntryIDs = bad
		return nil, verr
	}
	return c.continueFrom(ctx, entries)
}

// continueFrom runs discovery for every (session, layer) group of entries.
func (c *Coordinator) continueFrom(ctx context.Context, entries []*types.AffectedLaw) (*types.DiscoveryReport, error) {
	type group struct {
		session string
		layer   int
		laws    []types.LawID
	}
	index := make(map[string]*group)
	var groups []*group
	for _, e := range entries {
		key := fmt.Sprintf("%s\x00%d", e.SessionID, e.Layer)
		g, ok := index[key]
		if !ok {
			g = &group{session: e.SessionID, layer: e.Layer}
			index[key] = g
			groups = append(groups, g)
		}
		g.laws, _ = types.UnionLawIDs(g.laws, []types.LawID{e.AffectedLaw})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].session != groups[j].session {
			return groups[i].session < groups[j].session
		}
		return groups[i].layer < groups[j].layer
	})

	var merged *types.DiscoveryReport
	for _, g := range groups {
		report, err := c.engine.Discover(ctx, discovery.Request{
			SessionID:  g.session,
			Sources:    g.laws,
			StartLayer: g.layer + 1,
		})
		if err != nil {
			return merged, err
		}
		if merged == nil {
			merged = report
			continue
		}
		if merged.SessionID != report.SessionID {
			merged.SessionID = ""
		}
		merged.Merge(report)
	}
	return merged, nil
}

// Listing groups a session's entries by update type.
type Listing struct {
	Reparse      []*types.AffectedLaw `json:"reparse"`
	EnactingLink []*types.AffectedLaw `json:"enacting_link"`
	Summary      types.Summary        `json:"summary"`
}

// List returns the entries matching f, split by update type, with counts.
func (c *Coordinator) List(ctx context.Context, f types.Filter) (*Listing, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, types.NewValidationError("list", fmt.Sprintf("unknown status %q", f.Status), types.ErrInvalidStatus)
	}
	if f.UpdateType != "" && !f.UpdateType.Valid() {
		return nil, types.NewValidationError("list", fmt.Sprintf("unknown update type %q", f.UpdateType), types.ErrInvalidUpdateType)
	}

	entries, err := c.queue.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	summary, err := c.queue.Summarize(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("summarizing entries: %w", err)
	}

	l := &Listing{
		Reparse:      []*types.AffectedLaw{},
		EnactingLink: []*types.AffectedLaw{},
		Summary:      summary,
	}
	for _, e := range entries {
		switch e.UpdateType {
		case types.UpdateReparse:
			l.Reparse = append(l.Reparse, e)
		case types.UpdateEnactingLink:
			l.EnactingLink = append(l.EnactingLink, e)
		}
	}
	return l, nil
}

// BatchRequest selects the entries of an operator run: either explicit
// EntryIDs, or every pending entry of SessionID when AllPending is set.
type BatchRequest struct {
	Operator   types.OperatorKind `json:"operator"`
	EntryIDs   []string           `json:"entry_ids,omitempty"`
	SessionID  string             `json:"session_id,omitempty"`
	AllPending bool               `json:"all_pending,omitempty"`

	// Continue re-runs discovery from every entry the batch processed.
	Continue bool `json:"continue,omitempty"`
}

// RunBatch applies an operator. Successfully imported laws are always fed
// back into discovery at the entry's layer+1; other operators do so only
// when Continue is set. A continuation failure is reported on the result
// and does not fail the batch.
func (c *Coordinator) RunBatch(ctx context.Context, req BatchRequest) (*types.BatchResult, error) {
	if !req.Operator.Valid() {
		return nil, types.NewValidationError("batch", fmt.Sprintf("unknown operator %q", req.Operator), types.ErrUnknownOperator)
	}
	op, err := operator.New(req.Operator, c.laws, c.reparser, c.importer)
	if err != nil {
		return nil, err
	}

	ids, err := c.selectEntries(ctx, req, op)
	if err != nil {
		return nil, err
	}

	result, err := c.runner.Run(ctx, op, ids)
	if err != nil {
		return nil, err
	}

	if req.Continue || req.Operator == types.OperatorImport {
		if err := c.continueBatch(ctx, result); err != nil {
			c.logger.Warn("continuation failed", "operator", req.Operator, "error", err)
			result.ContinuationError = err.Error()
		}
	}
	return result, nil
}

func (c *Coordinator) selectEntries(ctx context.Context, req BatchRequest, op operator.Operator) ([]string, error) {
	switch {
	case req.AllPending && len(req.EntryIDs) > 0:
		return nil, types.NewValidationError("batch", "entry_ids and all_pending are mutually exclusive", types.ErrInvalidID)
	case req.AllPending:
		if req.SessionID == "" {
			return nil, types.NewValidationError("batch", "all_pending requires session_id", types.ErrInvalidSession)
		}
	case len(req.EntryIDs) == 0:
		return nil, types.NewValidationError("batch", "no entries selected", types.ErrInvalidID)
	default:
		return req.EntryIDs, nil
	}

	entries, err := c.queue.List(ctx, types.Filter{SessionID: req.SessionID, Status: types.StatusPending})
	if err != nil {
		return nil, fmt.Errorf("listing pending entries: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !op.Accepts(e.UpdateType) {
			continue
		}
		if req.Operator == types.OperatorImport {
			ok, err := c.laws.Exists(ctx, e.AffectedLaw)
			if err != nil {
				return nil, fmt.Errorf("checking law %s: %w", e.AffectedLaw, err)
			}
			if ok {
				continue
			}
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// continueBatch re-runs discovery from the entries a batch succeeded on.
func (c *Coordinator) continueBatch(ctx context.Context, result *types.BatchResult) error {
	var entries []*types.AffectedLaw
	for _, r := range result.Results {
		if r.Status != types.ResultSuccess {
			continue
		}
		e, err := c.queue.Get(ctx, r.ID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading entry %s: %w", r.ID, err)
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil
	}
	report, err := c.continueFrom(ctx, entries)
	result.Continuation = report
	return err
}

// DeleteEntry removes one entry.
func (c *Coordinator) DeleteEntry(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, types.NewValidationError("delete", "entry id is required", types.ErrInvalidID)
	}
	return c.queue.Delete(ctx, id)
}

// ClearSession deletes every entry of the session. Unknown sessions clear
// nothing and succeed.
func (c *Coordinator) ClearSession(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, types.NewValidationError("clear", "session_id is required", types.ErrInvalidSession)
	}
	n, err := c.queue.ClearSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	c.logger.Info("cleared session", "session_id", sessionID, "deleted", n)
	return n, nil
}

// ClearProcessed deletes processed entries of the session, or of every
// session when sessionID is empty.
func (c *Coordinator) ClearProcessed(ctx context.Context, sessionID string) (int, error) {
	n, err := c.queue.ClearProcessed(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	c.logger.Info("cleared processed entries", "session_id", sessionID, "deleted", n)
	return n, nil
}

// ReleaseDeferred makes deferred entries pending. Entries in any other
// status are left alone.
func (c *Coordinator) ReleaseDeferred(ctx context.Context, ids []string) (int, error) {
	return c.transition(ctx, "release", ids, types.StatusDeferred, types.StatusPending)
}

// SkipEntries marks pending entries skipped.
func (c *Coordinator) SkipEntries(ctx context.Context, ids []string) (int, error) {
	return c.transition(ctx, "skip", ids, types.StatusPending, types.StatusSkipped)
}

func (c *Coordinator) transition(ctx context.Context, op string, ids []string, from, to types.Status) (int, error) {
	if len(ids) == 0 {
		return 0, types.NewValidationError(op, "at least one entry is required", types.ErrInvalidID)
	}
	n, err := c.queue.Transition(ctx, ids, from, to)
	if err != nil {
		return 0, err
	}
	c.logger.Info("entries transitioned", "from", from, "to", to, "requested", len(ids), "changed", n)
	return n, nil
}

// Sessions returns per-session summaries.
func (c *Coordinator) Sessions(ctx context.Context) ([]types.SessionSummary, error) {
	return c.queue.Sessions(ctx)
}

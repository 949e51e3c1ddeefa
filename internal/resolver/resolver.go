// Package resolver turns a set of law identifiers into the update effects
// their relationships imply for other stored laws.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Resolver reads law relations from a law store. It never writes.
type Resolver struct {
	laws        types.LawReader
	concurrency int
	logger      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConcurrency bounds the number of concurrent law store lookups.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a Resolver over laws.
func New(laws types.LawReader, opts ...Option) *Resolver {
	r := &Resolver{
		laws:        laws,
		concurrency: types.DefaultResolverConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindAffected resolves the effects of ids.
//
// For each input law S that is stored: every stored law in S.amending or
// S.rescinding gets a reparse effect sourced from S, and every stored
// S.enacted_by parent gets an enacting_link effect sourced from S. Targets
// that are not stored, and inputs that are not stored, are reported in
// Missing. Self references are ignored. Output order follows input order,
// then relation order.
func (r *Resolver) FindAffected(ctx context.Context, ids []types.LawID) (*types.Resolution, error) {
	ids = types.UniqueLawIDs(ids)
	res := &types.Resolution{
		Reparse:  []types.Effect{},
		Enacting: []types.Effect{},
		Missing:  []types.MissingLaw{},
	}
	if len(ids) == 0 {
		return res, nil
	}

	sources, err := r.readLaws(ctx, ids)
	if err != nil {
		return nil, err
	}

	var targets []types.LawID
	for _, rel := range sources {
		if !rel.Exists {
			continue
		}
		targets, _ = types.UnionLawIDs(targets, rel.Amending)
		targets, _ = types.UnionLawIDs(targets, rel.Rescinding)
		targets, _ = types.UnionLawIDs(targets, rel.EnactedBy)
	}
	stored, err := r.checkExists(ctx, targets)
	if err != nil {
		return nil, err
	}

	for i, id := range ids {
		rel := sources[i]
		if !rel.Exists {
			res.Missing = append(res.Missing, types.MissingLaw{Law: id})
			continue
		}

		changed, _ := types.UnionLawIDs(rel.Amending, rel.Rescinding)
		for _, target := range changed {
			if target == id {
				continue
			}
			if !stored[target] {
				res.Missing = append(res.Missing, types.MissingLaw{Law: target, ReferencedBy: id, Kind: types.UpdateReparse})
				continue
			}
			res.Reparse = append(res.Reparse, types.Effect{AffectedLaw: target, SourceLaw: id, Kind: types.UpdateReparse})
		}

		for _, parent := range types.UniqueLawIDs(rel.EnactedBy) {
			if parent == id {
				continue
			}
			if !stored[parent] {
				res.Missing = append(res.Missing, types.MissingLaw{Law: parent, ReferencedBy: id, Kind: types.UpdateEnactingLink})
				continue
			}
			res.Enacting = append(res.Enacting, types.Effect{AffectedLaw: parent, SourceLaw: id, Kind: types.UpdateEnactingLink})
		}
	}

	r.logger.Debug("resolved frontier",
		"laws", len(ids),
		"reparse", len(res.Reparse),
		"enacting", len(res.Enacting),
		"missing", len(res.Missing),
	)
	return res, nil
}

func (r *Resolver) readLaws(ctx context.Context, ids []types.LawID) ([]*types.LawRelations, error) {
	out := make([]*types.LawRelations, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			rel, err := r.laws.GetLaw(gctx, id)
			if err != nil {
				return fmt.Errorf("reading law %s: %w", id, err)
			}
			if rel == nil {
				rel = &types.LawRelations{Name: id}
			}
			out[i] = rel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) checkExists(ctx context.Context, ids []types.LawID) (map[types.LawID]bool, error) {
	found := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			ok, err := r.laws.Exists(gctx, id)
			if err != nil {
				return fmt.Errorf("checking law %s: %w", id, err)
			}
			found[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stored := make(map[types.LawID]bool, len(ids))
	for i, id := range ids {
		stored[id] = found[i]
	}
	return stored, nil
}

package operator

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// EnactingLink appends an entry's source laws to the parent law's enacting
// array. It never re-parses the parent.
type EnactingLink struct {
	laws types.LawStore
}

// NewEnactingLink returns the enacting-link operator.
func NewEnactingLink(laws types.LawStore) *EnactingLink {
	return &EnactingLink{laws: laws}
}

// Kind returns types.OperatorEnactingLink.
func (o *EnactingLink) Kind() types.OperatorKind { return types.OperatorEnactingLink }

// Accepts reports whether t is an enacting-link entry.
func (o *EnactingLink) Accepts(t types.UpdateType) bool { return t == types.UpdateEnactingLink }

// DoneStatus reports an already processed entry as unchanged.
func (o *EnactingLink) DoneStatus() types.ResultStatus { return types.ResultUnchanged }

// Ready fails with ErrNoCollaborator when the law store is missing.
func (o *EnactingLink) Ready() error {
	if o.laws == nil {
		return fmt.Errorf("enacting_link: law store: %w", types.ErrNoCollaborator)
	}
	return nil
}

// Apply appends the entry's sources to the parent law's enacting list.
func (o *EnactingLink) Apply(ctx context.Context, entry *types.AffectedLaw) (*Outcome, error) {
	parent, err := o.laws.GetLaw(ctx, entry.AffectedLaw)
	if err != nil {
		return nil, fmt.Errorf("reading parent law: %w", err)
	}
	if parent == nil || !parent.Exists {
		return lawNotStored(), nil
	}

	missing := types.MissingLaws(entry.SourceLaws, parent.Enacting)
	if len(missing) == 0 {
		return &Outcome{
			Status:   types.ResultUnchanged,
			Message:  "enacting already lists every source",
			NewTotal: len(parent.Enacting),
			Complete: true,
		}, nil
	}

	updated, err := o.laws.AppendEnacting(ctx, entry.AffectedLaw, missing)
	if err != nil {
		return nil, fmt.Errorf("appending enacting: %w", err)
	}
	return &Outcome{
		Status:   types.ResultSuccess,
		Message:  fmt.Sprintf("added %d enacting links", len(missing)),
		Added:    missing,
		NewTotal: len(updated),
		Complete: true,
	}, nil
}

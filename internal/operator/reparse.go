package operator

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Reparse re-derives a law's amendment metadata through the parsing
// pipeline.
type Reparse struct {
	laws     types.LawReader
	reparser types.Reparser
}

// NewReparse returns the reparse operator.
func NewReparse(laws types.LawReader, reparser types.Reparser) *Reparse {
	return &Reparse{laws: laws, reparser: reparser}
}

// Kind returns types.OperatorReparse.
func (o *Reparse) Kind() types.OperatorKind { return types.OperatorReparse }

// Accepts reports whether t is a reparse entry.
func (o *Reparse) Accepts(t types.UpdateType) bool { return t == types.UpdateReparse }

// DoneStatus reports an already processed entry as unchanged.
func (o *Reparse) DoneStatus() types.ResultStatus { return types.ResultUnchanged }

// Ready fails with ErrNoCollaborator when the law store or parser is missing.
func (o *Reparse) Ready() error {
	if o.laws == nil {
		return fmt.Errorf("reparse: law store: %w", types.ErrNoCollaborator)
	}
	if o.reparser == nil {
		return fmt.Errorf("reparse: parser: %w", types.ErrNoCollaborator)
	}
	return nil
}

// Apply re-parses the affected law. A law that is not stored is left for
// the importer.
func (o *Reparse) Apply(ctx context.Context, entry *types.AffectedLaw) (*Outcome, error) {
	ok, err := o.laws.Exists(ctx, entry.AffectedLaw)
	if err != nil {
		return nil, fmt.Errorf("checking law: %w", err)
	}
	if !ok {
		return lawNotStored(), nil
	}

	res, err := o.reparser.ReparseLaw(ctx, entry.AffectedLaw)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Status:          types.ResultSuccess,
		Message:         fmt.Sprintf("inserted %d annotation rows in %dms", res.InsertedAnnotationRows, res.DurationMs),
		AnnotationCount: res.InsertedAnnotationCount,
		Complete:        true,
	}, nil
}

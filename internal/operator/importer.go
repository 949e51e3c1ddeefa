package operator

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Import pulls a law that is not yet stored into the law store. It accepts
// entries of either update type. Imported reparse entries are done;
// imported enacting_link entries stay pending for the link operator.
type Import struct {
	laws     types.LawReader
	importer types.Importer
}

// NewImport returns the missing-law importer.
func NewImport(laws types.LawReader, importer types.Importer) *Import {
	return &Import{laws: laws, importer: importer}
}

// Kind returns types.OperatorImport.
func (o *Import) Kind() types.OperatorKind { return types.OperatorImport }

// Accepts takes entries of either update type.
func (o *Import) Accepts(t types.UpdateType) bool { return t.Valid() }

// DoneStatus reports an already processed entry as exists.
func (o *Import) DoneStatus() types.ResultStatus { return types.ResultExists }

// Ready fails with ErrNoCollaborator when the law store or importer is missing.
func (o *Import) Ready() error {
	if o.laws == nil {
		return fmt.Errorf("import: law store: %w", types.ErrNoCollaborator)
	}
	if o.importer == nil {
		return fmt.Errorf("import: importer: %w", types.ErrNoCollaborator)
	}
	return nil
}

// Apply imports the affected law unless it is already stored.
func (o *Import) Apply(ctx context.Context, entry *types.AffectedLaw) (*Outcome, error) {
	ok, err := o.laws.Exists(ctx, entry.AffectedLaw)
	if err != nil {
		return nil, fmt.Errorf("checking law: %w", err)
	}
	if ok {
		return &Outcome{Status: types.ResultExists, Message: "law already in store"}, nil
	}

	recordID, err := o.importer.ImportLaw(ctx, entry.AffectedLaw)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Status:   types.ResultSuccess,
		Message:  fmt.Sprintf("imported as %s", recordID),
		Complete: entry.UpdateType == types.UpdateReparse,
	}, nil
}

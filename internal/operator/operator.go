// Package operator implements the batch operators that consume cascade
// queue entries, and the Runner that drives them over a bounded worker pool.
//
// Every entry is claimed before it is touched, handled at most once per
// run, and completed or released afterwards. A failure on one entry never
// affects the others.
package operator

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Messages reported for entries whose law is not yet in the store.
const msgImportFirst = "law not in store; import it first"

// Operator acts on one claimed entry.
type Operator interface {
	// Kind names the operator.
	Kind() types.OperatorKind

	// Accepts reports whether entries of update type t may be run.
	Accepts(t types.UpdateType) bool

	// Ready returns ErrNoCollaborator when a required collaborator is
	// missing.
	Ready() error

	// DoneStatus is the result reported for entries already processed.
	DoneStatus() types.ResultStatus

	// Apply performs the operator's work. A returned error marks the entry
	// failed; it stays pending with the message recorded.
	Apply(ctx context.Context, entry *types.AffectedLaw) (*Outcome, error)
}

// Outcome is what an operator decided for one entry.
type Outcome struct {
	Status          types.ResultStatus
	Message         string
	Added           []types.LawID
	NewTotal        int
	AnnotationCount int

	// Complete moves the entry to processed. Otherwise the entry is
	// released and stays pending, with Note recorded as its last error.
	Complete bool
	Note     string
}

// New builds the operator for kind.
func New(kind types.OperatorKind, laws types.LawStore, reparser types.Reparser, importer types.Importer) (Operator, error) {
	switch kind {
	case types.OperatorReparse:
		return NewReparse(laws, reparser), nil
	case types.OperatorEnactingLink:
		return NewEnactingLink(laws), nil
	case types.OperatorImport:
		return NewImport(laws, importer), nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnknownOperator, kind)
}

func lawNotStored() *Outcome {
	return &Outcome{Status: types.ResultSkipped, Message: msgImportFirst, Note: msgImportFirst}
}

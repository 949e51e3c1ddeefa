package types

import (
	"errors"
	"fmt"
	"strings"
)

// Queue and entity errors.
var (
	ErrNotFound          = errors.New("entry not found")
	ErrInvalidID         = errors.New("invalid entry ID")
	ErrInvalidSession    = errors.New("session ID must not be empty")
	ErrInvalidLawID      = errors.New("invalid law identifier")
	ErrInvalidStatus     = errors.New("invalid status value")
	ErrInvalidUpdateType = errors.New("invalid update type")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidLayer      = errors.New("layer must be positive")
	ErrSelfReference     = errors.New("affected law cannot be its own source")
)

// Operator errors.
var (
	ErrValidation      = errors.New("validation failed")
	ErrKindMismatch    = errors.New("operator does not accept entry update type")
	ErrUnknownOperator = errors.New("unknown operator")
	ErrNotClaimable    = errors.New("entry is not pending")
	ErrClaimed         = errors.New("entry is claimed by another run")
	ErrNoCollaborator  = errors.New("collaborator not configured")
	ErrLawNotFound     = errors.New("law not found in store")
)

// ValidationError reports a request rejected before any mutation, such as an
// operator run against entries of the wrong update type. It matches
// ErrValidation with errors.Is, and also every error in Causes.
type ValidationError struct {
	Op       string
	Reason   string
	EntryIDs []string
	Causes   []error
}

// NewValidationError builds a ValidationError for op.
func NewValidationError(op, reason string, causes ...error) *ValidationError {
	return &ValidationError{Op: op, Reason: reason, Causes: causes}
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Op, e.Reason)
	if len(e.EntryIDs) > 0 {
		fmt.Fprintf(&b, " (entries: %s)", strings.Join(e.EntryIDs, ", "))
	}
	return b.String()
}

// Is reports whether target is ErrValidation or one of the causes.
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	for _, c := range e.Causes {
		if errors.Is(c, target) {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a policy/validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

package types

// OperatorKind names a batch operator.
type OperatorKind string

// Batch operators.
const (
	OperatorReparse      OperatorKind = "reparse"
	OperatorEnactingLink OperatorKind = "enacting_link"
	OperatorImport       OperatorKind = "import"
)

// validOperators is the set of recognized operator kinds.
var validOperators = map[OperatorKind]bool{
	OperatorReparse:      true,
	OperatorEnactingLink: true,
	OperatorImport:       true,
}

// Valid reports whether k is a recognized operator.
func (k OperatorKind) Valid() bool { return validOperators[k] }

// ParseOperatorKind converts s to an OperatorKind.
func ParseOperatorKind(s string) (OperatorKind, error) {
	k := OperatorKind(s)
	if !k.Valid() {
		return "", ErrUnknownOperator
	}
	return k, nil
}

// ResultStatus is the per-entry outcome of an operator invocation.
type ResultStatus string

// Entry result statuses.
const (
	ResultSuccess   ResultStatus = "success"
	ResultError     ResultStatus = "error"
	ResultUnchanged ResultStatus = "unchanged"
	ResultExists    ResultStatus = "exists"
	ResultSkipped   ResultStatus = "skipped"
)

// EntryResult is the outcome for one entry in a batch.
type EntryResult struct {
	ID              string       `json:"id"`
	AffectedLaw     LawID        `json:"affected_law"`
	Status          ResultStatus `json:"status"`
	Message         string       `json:"message,omitempty"`
	Added           []LawID      `json:"added,omitempty"`
	NewTotal        int          `json:"new_total,omitempty"`
	AnnotationCount int          `json:"annotation_count,omitempty"`

	// Layer of the entry; used to continue discovery from it.
	Layer int `json:"layer,omitempty"`
}

// BatchResult aggregates an operator run. Results preserve request order.
type BatchResult struct {
	Operator  OperatorKind  `json:"operator"`
	Total     int           `json:"total"`
	Success   int           `json:"success"`
	Errors    int           `json:"errors"`
	Unchanged int           `json:"unchanged"`
	Exists    int           `json:"exists"`
	Skipped   int           `json:"skipped"`
	Results   []EntryResult `json:"results"`

	Continuation      *DiscoveryReport `json:"continuation,omitempty"`
	ContinuationError string           `json:"continuation_error,omitempty"`
}

// Tally recomputes the counters from Results.
func (b *BatchResult) Tally() {
	b.Total = len(b.Results)
	b.Success, b.Errors, b.Unchanged, b.Exists, b.Skipped = 0, 0, 0, 0, 0
	for _, r := range b.Results {
		switch r.Status {
		case ResultSuccess:
			b.Success++
		case ResultError:
			b.Errors++
		case ResultUnchanged:
			b.Unchanged++
		case ResultExists:
			b.Exists++
		case ResultSkipped:
			b.Skipped++
		}
	}
}

// FailedIDs returns the entry IDs whose result is an error, so a caller can
// retry exactly that subset.
func (b *BatchResult) FailedIDs() []string {
	var ids []string
	for _, r := range b.Results {
		if r.Status == ResultError {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

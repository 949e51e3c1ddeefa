package types

import "time"

// UpdateType says what kind of action an affected law needs.
type UpdateType string

// Update types. A reparse entry recomputes the affected law's own derived
// metadata from source text; an enacting_link entry only appends the source
// laws to the affected law's enacting array.
const (
	UpdateReparse      UpdateType = "reparse"
	UpdateEnactingLink UpdateType = "enacting_link"
)

// validUpdateTypes is the set of recognized update types.
var validUpdateTypes = map[UpdateType]bool{
	UpdateReparse:      true,
	UpdateEnactingLink: true,
}

// UpdateTypes lists the update types in display order.
var UpdateTypes = []UpdateType{UpdateReparse, UpdateEnactingLink}

// Valid reports whether t is a recognized update type.
func (t UpdateType) Valid() bool { return validUpdateTypes[t] }

// ParseUpdateType converts s to an UpdateType.
func ParseUpdateType(s string) (UpdateType, error) {
	t := UpdateType(s)
	if !t.Valid() {
		return "", ErrInvalidUpdateType
	}
	return t, nil
}

// Status is the lifecycle state of a queue entry.
type Status string

// Entry statuses.
const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusDeferred  Status = "deferred"
	StatusSkipped   Status = "skipped"
)

// validStatuses is the set of recognized statuses.
var validStatuses = map[Status]bool{
	StatusPending:   true,
	StatusProcessed: true,
	StatusDeferred:  true,
	StatusSkipped:   true,
}

// Statuses lists the statuses in display order.
var Statuses = []Status{StatusPending, StatusDeferred, StatusProcessed, StatusSkipped}

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool { return validStatuses[s] }

// Open reports whether an entry in this status may still gain sources.
// Pending entries absorb any rediscovery of their key; deferred entries only
// absorb writes beyond the auto layer.
func (s Status) Open() bool {
	switch s {
	case StatusPending, StatusDeferred:
		return true
	case StatusProcessed, StatusSkipped:
		return false
	}
	return false
}

// ParseStatus converts s to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// AffectedLaw is one row of the cascade queue: a persisted law that needs
// action because of the relationships of its source laws.
type AffectedLaw struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	AffectedLaw LawID      `json:"affected_law"`
	UpdateType  UpdateType `json:"update_type"`
	Status      Status     `json:"status"`
	SourceLaws  []LawID    `json:"source_laws"`
	Layer       int        `json:"layer"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Operator lease; empty when unclaimed.
	ClaimToken string     `json:"-"`
	ClaimedAt  *time.Time `json:"-"`
}

// Key returns the entry's (session, law, update type) triple.
func (a *AffectedLaw) Key() EntryKey {
	return EntryKey{SessionID: a.SessionID, AffectedLaw: a.AffectedLaw, UpdateType: a.UpdateType}
}

// Validate checks the fields a new entry must carry.
func (a *AffectedLaw) Validate() error {
	if a.SessionID == "" {
		return ErrInvalidSession
	}
	if err := a.AffectedLaw.Validate(); err != nil {
		return err
	}
	if !a.UpdateType.Valid() {
		return ErrInvalidUpdateType
	}
	if !a.Status.Valid() {
		return ErrInvalidStatus
	}
	if a.Layer < 1 {
		return ErrInvalidLayer
	}
	if ContainsLaw(a.SourceLaws, a.AffectedLaw) {
		return ErrSelfReference
	}
	return nil
}

// RecordsSources reports whether every law in sources is already listed.
func (a *AffectedLaw) RecordsSources(sources []LawID) bool {
	return len(MissingLaws(sources, a.SourceLaws)) == 0
}

// MergeSources adds sources not already recorded and returns how many were
// added. The affected law itself is never added. Layer is left untouched.
// Returns ErrInvalidTransition if the entry is no longer open.
func (a *AffectedLaw) MergeSources(sources []LawID) (int, error) {
	if !a.Status.Open() {
		return 0, ErrInvalidTransition
	}
	filtered := make([]LawID, 0, len(sources))
	for _, s := range sources {
		if s != a.AffectedLaw {
			filtered = append(filtered, s)
		}
	}
	merged, added := UnionLawIDs(a.SourceLaws, filtered)
	if len(added) == 0 {
		return 0, nil
	}
	a.SourceLaws = merged
	a.UpdatedAt = time.Now()
	return len(added), nil
}

// Process marks a pending entry as done and clears the last error.
// Processing an already processed entry is a no-op.
func (a *AffectedLaw) Process() error {
	switch a.Status {
	case StatusProcessed:
		return nil
	case StatusPending:
		a.Status = StatusProcessed
		a.LastError = ""
		a.UpdatedAt = time.Now()
		return nil
	case StatusDeferred, StatusSkipped:
		return ErrInvalidTransition
	}
	return ErrInvalidStatus
}

// Skip marks an open entry as intentionally not actioned. Idempotent.
func (a *AffectedLaw) Skip() error {
	switch a.Status {
	case StatusSkipped:
		return nil
	case StatusPending, StatusDeferred:
		a.Status = StatusSkipped
		a.UpdatedAt = time.Now()
		return nil
	case StatusProcessed:
		return ErrInvalidTransition
	}
	return ErrInvalidStatus
}

// Release moves a deferred entry back to pending so operators can act on it.
func (a *AffectedLaw) Release() error {
	if a.Status != StatusDeferred {
		return ErrInvalidTransition
	}
	a.Status = StatusPending
	a.UpdatedAt = time.Now()
	return nil
}

// EntryKey identifies the entries of one (session, law, update type).
type EntryKey struct {
	SessionID   string
	AffectedLaw LawID
	UpdateType  UpdateType
}

// TransitionAllowed reports whether a manual status change from -> to is
// permitted outside of operator completion.
func TransitionAllowed(from, to Status) bool {
	switch to {
	case StatusPending:
		return from == StatusDeferred
	case StatusSkipped:
		return from == StatusPending || from == StatusDeferred
	case StatusProcessed:
		return from == StatusPending
	case StatusDeferred:
		return false
	}
	return false
}

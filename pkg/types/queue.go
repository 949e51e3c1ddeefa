package types

import (
	"context"
	"time"
)

// Queue is the persisted store of cascade entries. Every query and delete is
// scoped by session; entries of different sessions never interact.
type Queue interface {
	// ApplyLayer writes every effect of one discovery layer in a single
	// transaction. Either all outcomes are committed or none are.
	ApplyLayer(ctx context.Context, w LayerWrite) ([]UpsertOutcome, error)

	// Get returns the entry with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*AffectedLaw, error)

	// List returns entries matching the filter ordered by layer, then
	// creation.
	List(ctx context.Context, f Filter) ([]*AffectedLaw, error)

	// Summarize returns counts for entries matching the filter.
	Summarize(ctx context.Context, f Filter) (Summary, error)

	// SessionSources returns every law listed as a source by any entry of
	// the session.
	SessionSources(ctx context.Context, sessionID string) ([]LawID, error)

	// Sessions returns one summary per session with entries.
	Sessions(ctx context.Context) ([]SessionSummary, error)

	// Claim leases a pending entry to token. A claim older than ttl may be
	// taken over. Returns the current entry together with ErrNotClaimable
	// when it is not pending, or ErrClaimed when another token holds it.
	Claim(ctx context.Context, id, token string, ttl time.Duration) (*AffectedLaw, error)

	// Complete moves a claimed entry to status and releases the claim.
	Complete(ctx context.Context, id, token string, status Status) error

	// Release drops a claim, leaving the entry pending and recording
	// lastError (empty clears it).
	Release(ctx context.Context, id, token, lastError string) error

	// Transition applies a manual status change to unclaimed entries whose
	// current status is from. Returns the number of entries changed.
	Transition(ctx context.Context, ids []string, from, to Status) (int, error)

	// Delete removes one entry. Returns false, nil when it does not exist.
	Delete(ctx context.Context, id string) (bool, error)

	// ClearSession deletes every entry of the session.
	ClearSession(ctx context.Context, sessionID string) (int, error)

	// ClearProcessed deletes processed entries of the session, or of all
	// sessions when sessionID is empty.
	ClearProcessed(ctx context.Context, sessionID string) (int, error)
}

// LayerWrite carries one layer of discovery effects.
type LayerWrite struct {
	SessionID    string
	Layer        int
	MaxAutoLayer int
	Effects      []Effect

	// SkipMissing inserts effects flagged Missing as skipped.
	SkipMissing bool
}

// InitialStatus returns the status a new entry gets at this layer.
func (w LayerWrite) InitialStatus(e Effect) Status {
	if e.Missing && w.SkipMissing {
		return StatusSkipped
	}
	if w.Layer > w.MaxAutoLayer {
		return StatusDeferred
	}
	return StatusPending
}

// UpsertAction says what ApplyLayer did for one entry key.
type UpsertAction string

// Upsert actions.
const (
	ActionInserted  UpsertAction = "inserted"
	ActionMerged    UpsertAction = "merged"
	ActionUnchanged UpsertAction = "unchanged"
	ActionRecorded  UpsertAction = "recorded"
)

// UpsertOutcome reports the entry touched for one key of a layer write.
type UpsertOutcome struct {
	EntryID     string
	AffectedLaw LawID
	UpdateType  UpdateType
	Action      UpsertAction
	Status      Status
	Layer       int
	Missing     bool
}

// Filter selects entries. Zero values match everything.
type Filter struct {
	SessionID  string
	Status     Status
	UpdateType UpdateType
	IDs        []string
}

// Summary holds derived counts for a listing.
type Summary struct {
	Total        int                `json:"total"`
	TotalPending int                `json:"total_pending"`
	ByStatus     map[Status]int     `json:"by_status"`
	ByUpdateType map[UpdateType]int `json:"by_update_type"`
	ByLayer      map[int]int        `json:"by_layer"`
}

// NewSummary returns a Summary with every status and update type present.
func NewSummary() Summary {
	s := Summary{
		ByStatus:     make(map[Status]int, len(Statuses)),
		ByUpdateType: make(map[UpdateType]int, len(UpdateTypes)),
		ByLayer:      make(map[int]int),
	}
	for _, st := range Statuses {
		s.ByStatus[st] = 0
	}
	for _, t := range UpdateTypes {
		s.ByUpdateType[t] = 0
	}
	return s
}

// Add counts one entry.
func (s *Summary) Add(e *AffectedLaw) {
	s.Total++
	s.ByStatus[e.Status]++
	s.ByUpdateType[e.UpdateType]++
	s.ByLayer[e.Layer]++
	if e.Status == StatusPending {
		s.TotalPending++
	}
}

// SessionSummary describes one session's slice of the queue.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Total     int       `json:"total"`
	Pending   int       `json:"pending"`
	Deferred  int       `json:"deferred"`
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	MaxLayer  int       `json:"max_layer"`
	UpdatedAt time.Time `json:"updated_at"`
}

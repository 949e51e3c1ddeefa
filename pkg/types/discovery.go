package types

// DefaultMaxAutoLayer is the deepest layer whose entries are created
// pending. Entries first discovered beyond it are created deferred.
const DefaultMaxAutoLayer = 3

// Effect is one relationship-derived action: SourceLaw causes AffectedLaw to
// need an update of the given Kind.
type Effect struct {
	AffectedLaw LawID      `json:"affected_law"`
	SourceLaw   LawID      `json:"source_law"`
	Kind        UpdateType `json:"kind"`

	// Missing is set when AffectedLaw is not persisted in the law store.
	Missing bool `json:"missing,omitempty"`
}

// MissingLaw is a law identifier the resolver could not find in the store.
// ReferencedBy is empty when the missing law was itself a resolver input.
type MissingLaw struct {
	Law          LawID      `json:"law"`
	ReferencedBy LawID      `json:"referenced_by,omitempty"`
	Kind         UpdateType `json:"kind,omitempty"`
}

// Resolution is the resolver output for one frontier.
type Resolution struct {
	Reparse  []Effect     `json:"reparse"`
	Enacting []Effect     `json:"enacting"`
	Missing  []MissingLaw `json:"missing"`
}

// Effects returns the reparse effects followed by the enacting effects.
func (r *Resolution) Effects() []Effect {
	out := make([]Effect, 0, len(r.Reparse)+len(r.Enacting))
	out = append(out, r.Reparse...)
	return append(out, r.Enacting...)
}

// MissingPolicy decides what discovery does with affected laws that are not
// in the law store.
type MissingPolicy string

// Missing-law policies.
const (
	// MissingQueue creates open entries for the add-missing-law operator.
	MissingQueue MissingPolicy = "queue"
	// MissingSkip records the entries as skipped.
	MissingSkip MissingPolicy = "skip"
)

// Valid reports whether p is a recognized policy.
func (p MissingPolicy) Valid() bool {
	return p == MissingQueue || p == MissingSkip
}

// StopReason records why a discovery run ended.
type StopReason string

// Discovery stop reasons.
const (
	StopFrontierEmpty StopReason = "frontier_empty"
	StopDepthCeiling  StopReason = "depth_ceiling"
)

// LayerReport counts what one discovery layer wrote.
type LayerReport struct {
	Layer     int     `json:"layer"`
	Frontier  []LawID `json:"frontier"`
	Inserted  int     `json:"inserted"`
	Merged    int     `json:"merged"`
	Unchanged int     `json:"unchanged"`
	Recorded  int     `json:"recorded"`
	Deferred  int     `json:"deferred"`
	Skipped   int     `json:"skipped"`
}

// DiscoveryReport summarizes a discovery run.
type DiscoveryReport struct {
	SessionID  string        `json:"session_id"`
	Sources    []LawID       `json:"sources"`
	StartLayer int           `json:"start_layer"`
	Layers     []LayerReport `json:"layers"`
	Missing    []MissingLaw  `json:"missing"`
	StoppedBy  StopReason    `json:"stopped_by"`
}

// Inserted returns the total number of entries created by the run.
func (r *DiscoveryReport) Inserted() int {
	n := 0
	for _, l := range r.Layers {
		n += l.Inserted
	}
	return n
}

// Merged returns the total number of entries that gained sources.
func (r *DiscoveryReport) Merged() int {
	n := 0
	for _, l := range r.Layers {
		n += l.Merged
	}
	return n
}

// Merge folds another report for the same session into r.
func (r *DiscoveryReport) Merge(other *DiscoveryReport) {
	if other == nil {
		return
	}
	r.Sources, _ = UnionLawIDs(r.Sources, other.Sources)
	r.Layers = append(r.Layers, other.Layers...)
	r.Missing = append(r.Missing, other.Missing...)
	if other.StoppedBy == StopDepthCeiling {
		r.StoppedBy = StopDepthCeiling
	} else if r.StoppedBy == "" {
		r.StoppedBy = other.StoppedBy
	}
}

package types

import (
	"context"
	"strings"
	"unicode"
)

// LawID is the stable name of a law record, for example "UK_uksi_2025_1"
// (the uk_lrt name column).
type LawID string

// maxLawIDLen bounds identifiers accepted from callers.
const maxLawIDLen = 255

// String returns the identifier as a plain string.
func (id LawID) String() string { return string(id) }

// Validate returns ErrInvalidLawID when the identifier is empty, too long, or
// contains whitespace.
func (id LawID) Validate() error {
	if id == "" || len(id) > maxLawIDLen {
		return ErrInvalidLawID
	}
	if strings.IndexFunc(string(id), unicode.IsSpace) >= 0 {
		return ErrInvalidLawID
	}
	return nil
}

// LawRelations is the subset of a law record the engine reads. The lists
// mirror the JSON-valued relation columns of the law table.
type LawRelations struct {
	Name       LawID   `json:"name"`
	Amending   []LawID `json:"amending"`
	Rescinding []LawID `json:"rescinding"`
	EnactedBy  []LawID `json:"enacted_by"`
	Enacting   []LawID `json:"enacting"`
	Exists     bool    `json:"exists"`
}

// LawRecord is a full law row as imported into a local law table. Field
// names follow the uk_lrt columns.
type LawRecord struct {
	Name       LawID   `json:"name"`
	TitleEN    string  `json:"title_en,omitempty"`
	Amending   []LawID `json:"amending"`
	Rescinding []LawID `json:"rescinding"`
	EnactedBy  []LawID `json:"enacted_by"`
	Enacting   []LawID `json:"enacting"`
}

// Relations returns the record as the engine sees it.
func (r *LawRecord) Relations() *LawRelations {
	return &LawRelations{
		Name:       r.Name,
		Amending:   r.Amending,
		Rescinding: r.Rescinding,
		EnactedBy:  r.EnactedBy,
		Enacting:   r.Enacting,
		Exists:     true,
	}
}

// LawReader is the read side of the law store. GetLaw returns a value with
// Exists false, and no error, when the law is not persisted.
type LawReader interface {
	GetLaw(ctx context.Context, id LawID) (*LawRelations, error)
	Exists(ctx context.Context, id LawID) (bool, error)
}

// LawStore adds the one write the engine performs on laws.
type LawStore interface {
	LawReader

	// AppendEnacting appends ids missing from the law's enacting array and
	// returns the updated array. Identifiers already present are not
	// duplicated. Returns ErrLawNotFound when the law does not exist.
	AppendEnacting(ctx context.Context, id LawID, ids []LawID) ([]LawID, error)
}

// ReparseResult is what the parsing pipeline reports after re-deriving a
// law's amendment metadata from source text.
type ReparseResult struct {
	InsertedAnnotationRows  int   `json:"inserted_annotation_rows"`
	InsertedAnnotationCount int   `json:"inserted_annotation_count"`
	DurationMs              int64 `json:"duration_ms"`
}

// Reparser re-parses an existing law from its upstream source.
type Reparser interface {
	ReparseLaw(ctx context.Context, id LawID) (*ReparseResult, error)
}

// Importer fetches, classifies and persists a law that is not yet stored,
// returning the created record ID.
type Importer interface {
	ImportLaw(ctx context.Context, id LawID) (string, error)
}

// ContainsLaw reports whether ids contains id.
func ContainsLaw(ids []LawID, id LawID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// UniqueLawIDs returns ids with empty values and duplicates removed,
// preserving first-seen order.
func UniqueLawIDs(ids []LawID) []LawID {
	seen := make(map[LawID]bool, len(ids))
	out := make([]LawID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// UnionLawIDs appends the members of add not already in base. The result
// keeps base order followed by new members in add order. The second return
// value is the slice of identifiers actually added.
func UnionLawIDs(base, add []LawID) ([]LawID, []LawID) {
	out := UniqueLawIDs(base)
	var added []LawID
	for _, id := range UniqueLawIDs(add) {
		if ContainsLaw(out, id) {
			continue
		}
		out = append(out, id)
		added = append(added, id)
	}
	return out, added
}

// MissingLaws returns the members of want that are absent from have.
func MissingLaws(want, have []LawID) []LawID {
	var out []LawID
	for _, id := range UniqueLawIDs(want) {
		if !ContainsLaw(have, id) {
			out = append(out, id)
		}
	}
	return out
}

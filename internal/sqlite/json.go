// JSON record structures for JSONL law imports and queue exports.
package sqlite

import "github.com/mesh-intelligence/lawcascade/pkg/types"

// lawJSON is one line of a laws JSONL file. Columns of the law table that
// the engine does not read are ignored.
type lawJSON struct {
	Name       string   `json:"name"`
	TitleEN    string   `json:"title_en"`
	Amending   []string `json:"amending"`
	Rescinding []string `json:"rescinding"`
	EnactedBy  []string `json:"enacted_by"`
	Enacting   []string `json:"enacting"`
}

func (l lawJSON) record() *types.LawRecord {
	return &types.LawRecord{
		Name:       types.LawID(l.Name),
		TitleEN:    l.TitleEN,
		Amending:   toLawIDs(l.Amending),
		Rescinding: toLawIDs(l.Rescinding),
		EnactedBy:  toLawIDs(l.EnactedBy),
		Enacting:   toLawIDs(l.Enacting),
	}
}

// entryJSON is one line of a queue export.
type entryJSON struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"session_id"`
	AffectedLaw string   `json:"affected_law"`
	UpdateType  string   `json:"update_type"`
	Status      string   `json:"status"`
	SourceLaws  []string `json:"source_laws"`
	Layer       int      `json:"layer"`
	LastError   string   `json:"last_error,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func newEntryJSON(e *types.AffectedLaw) entryJSON {
	sources := make([]string, len(e.SourceLaws))
	for i, s := range e.SourceLaws {
		sources[i] = string(s)
	}
	return entryJSON{
		ID:          e.ID,
		SessionID:   e.SessionID,
		AffectedLaw: string(e.AffectedLaw),
		UpdateType:  string(e.UpdateType),
		Status:      string(e.Status),
		SourceLaws:  sources,
		Layer:       e.Layer,
		LastError:   e.LastError,
		CreatedAt:   formatTime(e.CreatedAt),
		UpdatedAt:   formatTime(e.UpdatedAt),
	}
}

func toLawIDs(ss []string) []types.LawID {
	ids := make([]types.LawID, 0, len(ss))
	for _, s := range ss {
		ids = append(ids, types.LawID(s))
	}
	return ids
}

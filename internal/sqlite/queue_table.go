package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Compile-time interface check: QueueTable must implement Queue.
var _ types.Queue = (*QueueTable)(nil)

// QueueTable implements types.Queue over the cascade_affected_laws table.
// Each operation hydrates/dehydrates between SQLite rows and
// *types.AffectedLaw structs.
type QueueTable struct {
	backend *Backend
}

const entryColumns = "id, session_id, affected_law, update_type, status, source_laws, layer, last_error, claim_token, claimed_at, created_at, updated_at"

// ApplyLayer upserts every effect of one layer inside a single transaction.
// Effects sharing a key are folded together first; self-referencing effects
// are dropped.
func (q *QueueTable) ApplyLayer(ctx context.Context, w types.LayerWrite) ([]types.UpsertOutcome, error) {
	if w.SessionID == "" {
		return nil, types.ErrInvalidSession
	}
	if w.Layer < 1 {
		return nil, types.ErrInvalidLayer
	}
	groups, err := groupEffects(w.Effects)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}

	tx, err := q.backend.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	outcomes := make([]types.UpsertOutcome, 0, len(groups))
	for _, g := range groups {
		out, err := upsertTx(ctx, tx, w, g, now)
		if err != nil {
			return nil, fmt.Errorf("upserting %s %s: %w", g.kind, g.law, err)
		}
		outcomes = append(outcomes, out)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing layer %d: %w", w.Layer, err)
	}
	return outcomes, nil
}

// effectGroup is every effect of a layer that targets one entry key.
type effectGroup struct {
	law     types.LawID
	kind    types.UpdateType
	sources []types.LawID
	missing bool
}

func groupEffects(effects []types.Effect) ([]*effectGroup, error) {
	index := make(map[types.EntryKey]*effectGroup, len(effects))
	var groups []*effectGroup
	for _, e := range effects {
		if err := e.AffectedLaw.Validate(); err != nil {
			return nil, err
		}
		if !e.Kind.Valid() {
			return nil, types.ErrInvalidUpdateType
		}
		if e.SourceLaw == e.AffectedLaw {
			continue
		}
		key := types.EntryKey{AffectedLaw: e.AffectedLaw, UpdateType: e.Kind}
		g, ok := index[key]
		if !ok {
			g = &effectGroup{law: e.AffectedLaw, kind: e.Kind}
			index[key] = g
			groups = append(groups, g)
		}
		if e.SourceLaw != "" && !types.ContainsLaw(g.sources, e.SourceLaw) {
			g.sources = append(g.sources, e.SourceLaw)
		}
		g.missing = g.missing || e.Missing
	}
	return groups, nil
}

func upsertTx(ctx context.Context, tx *sql.Tx, w types.LayerWrite, g *effectGroup, now time.Time) (types.UpsertOutcome, error) {
	out := types.UpsertOutcome{AffectedLaw: g.law, UpdateType: g.kind, Missing: g.missing}

	// Pending (or, beyond the cap, deferred) entry: merge sources, keep its layer.
	open, err := openEntryTx(ctx, tx, w, g)
	switch {
	case err == nil:
		added, err := open.MergeSources(g.sources)
		if err != nil {
			return out, err
		}
		out.EntryID, out.Status, out.Layer = open.ID, open.Status, open.Layer
		out.Action = types.ActionUnchanged
		if added > 0 {
			if err := updateSourcesTx(ctx, tx, open); err != nil {
				return out, err
			}
			out.Action = types.ActionMerged
		}
		return out, nil
	case !errors.Is(err, sql.ErrNoRows):
		return out, fmt.Errorf("finding entry to merge: %w", err)
	}

	// Closed entries that already record every source make this a no-op.
	latest, recorded, err := closedSourcesTx(ctx, tx, w.SessionID, g)
	if err != nil {
		return out, err
	}
	if latest != nil && len(types.MissingLaws(g.sources, recorded)) == 0 {
		out.EntryID, out.Status, out.Layer = latest.ID, latest.Status, latest.Layer
		out.Action = types.ActionRecorded
		return out, nil
	}

	e := &types.AffectedLaw{
		ID:          generateUUID(),
		SessionID:   w.SessionID,
		AffectedLaw: g.law,
		UpdateType:  g.kind,
		Status:      w.InitialStatus(types.Effect{Missing: g.missing}),
		SourceLaws:  g.sources,
		Layer:       w.Layer,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if e.SourceLaws == nil {
		e.SourceLaws = []types.LawID{}
	}
	if err := e.Validate(); err != nil {
		return out, err
	}
	if err := insertEntryTx(ctx, tx, e); err != nil {
		return out, err
	}
	out.EntryID, out.Status, out.Layer = e.ID, e.Status, e.Layer
	out.Action = types.ActionInserted
	return out, nil
}

// openEntryTx finds the entry a layer write merges into: the pending entry
// for the key, or, for a write beyond the auto layer, the deferred one.
// A deferred entry never absorbs a write that would be inserted pending.
func openEntryTx(ctx context.Context, tx *sql.Tx, w types.LayerWrite, g *effectGroup) (*types.AffectedLaw, error) {
	e, err := entryWithStatusTx(ctx, tx, w.SessionID, g.law, g.kind, types.StatusPending)
	if !errors.Is(err, sql.ErrNoRows) || w.Layer <= w.MaxAutoLayer {
		return e, err
	}
	return entryWithStatusTx(ctx, tx, w.SessionID, g.law, g.kind, types.StatusDeferred)
}

func entryWithStatusTx(ctx context.Context, tx *sql.Tx, sessionID string, law types.LawID, kind types.UpdateType, status types.Status) (*types.AffectedLaw, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM cascade_affected_laws WHERE session_id = ? AND affected_law = ? AND update_type = ? AND status = ?",
		sessionID, string(law), string(kind), string(status),
	)
	return scanEntry(row)
}

func closedSourcesTx(ctx context.Context, tx *sql.Tx, sessionID string, g *effectGroup) (*types.AffectedLaw, []types.LawID, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM cascade_affected_laws WHERE session_id = ? AND affected_law = ? AND update_type = ? AND status IN ('processed', 'skipped') ORDER BY created_at DESC, id DESC",
		sessionID, string(g.law), string(g.kind),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("finding closed entries: %w", err)
	}
	defer rows.Close()

	var latest *types.AffectedLaw
	var recorded []types.LawID
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("hydrating entry: %w", err)
		}
		if latest == nil {
			latest = e
		}
		recorded, _ = types.UnionLawIDs(recorded, e.SourceLaws)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating closed entries: %w", err)
	}
	return latest, recorded, nil
}

func insertEntryTx(ctx context.Context, tx *sql.Tx, e *types.AffectedLaw) error {
	sources, err := json.Marshal(e.SourceLaws)
	if err != nil {
		return fmt.Errorf("marshaling source laws: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO cascade_affected_laws (id, session_id, affected_law, update_type, status, source_laws, layer, last_error, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?)",
		e.ID, e.SessionID, string(e.AffectedLaw), string(e.UpdateType), string(e.Status), string(sources), e.Layer,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

func updateSourcesTx(ctx context.Context, tx *sql.Tx, e *types.AffectedLaw) error {
	sources, err := json.Marshal(e.SourceLaws)
	if err != nil {
		return fmt.Errorf("marshaling source laws: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE cascade_affected_laws SET source_laws = ?, updated_at = ? WHERE id = ?",
		string(sources), formatTime(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("merging sources: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (q *QueueTable) Get(ctx context.Context, id string) (*types.AffectedLaw, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	row := q.backend.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM cascade_affected_laws WHERE id = ?", id,
	)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting entry %s: %w", id, err)
	}
	return e, nil
}

// List returns entries matching the filter ordered by layer, creation time
// and ID. Returns an empty slice, not nil, when nothing matches.
func (q *QueueTable) List(ctx context.Context, f types.Filter) ([]*types.AffectedLaw, error) {
	where, args := filterClause(f)
	rows, err := q.backend.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM cascade_affected_laws"+where+" ORDER BY layer ASC, created_at ASC, id ASC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	results := []*types.AffectedLaw{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating entry: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return results, nil
}

// Summarize counts entries matching the filter by status, update type and
// layer.
func (q *QueueTable) Summarize(ctx context.Context, f types.Filter) (types.Summary, error) {
	s := types.NewSummary()
	where, args := filterClause(f)
	rows, err := q.backend.db.QueryContext(ctx,
		"SELECT status, update_type, layer, COUNT(*) FROM cascade_affected_laws"+where+" GROUP BY status, update_type, layer",
		args...,
	)
	if err != nil {
		return s, fmt.Errorf("summarizing entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, updateType string
		var layer, n int
		if err := rows.Scan(&status, &updateType, &layer, &n); err != nil {
			return s, fmt.Errorf("scanning summary: %w", err)
		}
		s.Total += n
		s.ByStatus[types.Status(status)] += n
		s.ByUpdateType[types.UpdateType(updateType)] += n
		s.ByLayer[layer] += n
		if types.Status(status) == types.StatusPending {
			s.TotalPending += n
		}
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("iterating summary: %w", err)
	}
	return s, nil
}

// SessionSources returns the union of source_laws over every entry of the
// session, in layer order.
func (q *QueueTable) SessionSources(ctx context.Context, sessionID string) ([]types.LawID, error) {
	if sessionID == "" {
		return nil, types.ErrInvalidSession
	}
	rows, err := q.backend.db.QueryContext(ctx,
		"SELECT source_laws FROM cascade_affected_laws WHERE session_id = ? ORDER BY layer ASC, created_at ASC, id ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session sources: %w", err)
	}
	defer rows.Close()

	var all []types.LawID
	seen := make(map[types.LawID]bool)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning source laws: %w", err)
		}
		sources, err := decodeLawIDs(raw)
		if err != nil {
			return nil, err
		}
		for _, id := range sources {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating source laws: %w", err)
	}
	return all, nil
}

// Sessions returns one summary per session, ordered by session ID.
func (q *QueueTable) Sessions(ctx context.Context) ([]types.SessionSummary, error) {
	rows, err := q.backend.db.QueryContext(ctx, `SELECT session_id, COUNT(*),
    SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
    SUM(CASE WHEN status = 'deferred' THEN 1 ELSE 0 END),
    SUM(CASE WHEN status = 'processed' THEN 1 ELSE 0 END),
    SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END),
    MAX(layer), MAX(updated_at)
FROM cascade_affected_laws GROUP BY session_id ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []types.SessionSummary{}
	for rows.Next() {
		var s types.SessionSummary
		var updatedAt string
		if err := rows.Scan(&s.SessionID, &s.Total, &s.Pending, &s.Deferred, &s.Processed, &s.Skipped, &s.MaxLayer, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Claim leases a pending entry to token.
func (q *QueueTable) Claim(ctx context.Context, id, token string, ttl time.Duration) (*types.AffectedLaw, error) {
	if id == "" || token == "" {
		return nil, types.ErrInvalidID
	}
	tx, err := q.backend.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	e, err := scanEntry(tx.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM cascade_affected_laws WHERE id = ?", id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting entry %s: %w", id, err)
	}
	if e.Status != types.StatusPending {
		return e, types.ErrNotClaimable
	}

	now := time.Now().UTC()
	if e.ClaimToken != "" && e.ClaimToken != token && e.ClaimedAt != nil && now.Sub(*e.ClaimedAt) < ttl {
		return e, types.ErrClaimed
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE cascade_affected_laws SET claim_token = ?, claimed_at = ? WHERE id = ?",
		token, formatTime(now), id,
	); err != nil {
		return nil, fmt.Errorf("claiming entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	e.ClaimToken = token
	e.ClaimedAt = &now
	return e, nil
}

// Complete moves a claimed pending entry to status (processed or skipped)
// and drops the claim. Completing as processed clears last_error.
func (q *QueueTable) Complete(ctx context.Context, id, token string, status types.Status) error {
	if status != types.StatusProcessed && status != types.StatusSkipped {
		return types.ErrInvalidTransition
	}
	res, err := q.backend.db.ExecContext(ctx,
		`UPDATE cascade_affected_laws
SET status = ?, claim_token = '', claimed_at = NULL, updated_at = ?,
    last_error = CASE WHEN ? = 'processed' THEN '' ELSE last_error END
WHERE id = ? AND status = 'pending' AND claim_token = ?`,
		string(status), formatTime(time.Now()), string(status), id, token,
	)
	if err != nil {
		return fmt.Errorf("completing entry %s: %w", id, err)
	}
	return q.checkClaimed(ctx, res, id)
}

// Release drops the claim and records lastError; the entry stays pending.
func (q *QueueTable) Release(ctx context.Context, id, token, lastError string) error {
	res, err := q.backend.db.ExecContext(ctx,
		"UPDATE cascade_affected_laws SET claim_token = '', claimed_at = NULL, last_error = ?, updated_at = ? WHERE id = ? AND claim_token = ?",
		lastError, formatTime(time.Now()), id, token,
	)
	if err != nil {
		return fmt.Errorf("releasing entry %s: %w", id, err)
	}
	return q.checkClaimed(ctx, res, id)
}

// checkClaimed turns a zero-row claim update into the matching error.
func (q *QueueTable) checkClaimed(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	e, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status != types.StatusPending {
		return types.ErrNotClaimable
	}
	return types.ErrClaimed
}

// Transition changes the status of unclaimed entries currently in from.
// A release to pending folds an entry into its key's pending entry when
// one exists.
func (q *QueueTable) Transition(ctx context.Context, ids []string, from, to types.Status) (int, error) {
	if !types.TransitionAllowed(from, to) {
		return 0, types.ErrInvalidTransition
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if to == types.StatusPending {
		return q.promote(ctx, ids, from)
	}
	args := []any{string(to), formatTime(time.Now()), string(from)}
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := q.backend.db.ExecContext(ctx,
		"UPDATE cascade_affected_laws SET status = ?, updated_at = ? WHERE status = ? AND claim_token = '' AND id IN ("+placeholders(len(ids))+")",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("transitioning entries %s -> %s: %w", from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return int(n), nil
}

// promote moves unclaimed entries from -> pending in one transaction. An
// entry whose key already has a pending entry is folded into it: its
// sources are merged and the row is removed.
func (q *QueueTable) promote(ctx context.Context, ids []string, from types.Status) (int, error) {
	tx, err := q.backend.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	n := 0
	for _, id := range ids {
		row := tx.QueryRowContext(ctx,
			"SELECT "+entryColumns+" FROM cascade_affected_laws WHERE id = ? AND status = ? AND claim_token = ''",
			id, string(from),
		)
		e, err := scanEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("finding entry %s: %w", id, err)
		}

		pending, err := entryWithStatusTx(ctx, tx, e.SessionID, e.AffectedLaw, e.UpdateType, types.StatusPending)
		switch {
		case err == nil:
			added, err := pending.MergeSources(e.SourceLaws)
			if err != nil {
				return 0, err
			}
			if added > 0 {
				pending.UpdatedAt = now
				if err := updateSourcesTx(ctx, tx, pending); err != nil {
					return 0, err
				}
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM cascade_affected_laws WHERE id = ?", e.ID); err != nil {
				return 0, fmt.Errorf("folding entry %s: %w", e.ID, err)
			}
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				"UPDATE cascade_affected_laws SET status = ?, updated_at = ? WHERE id = ?",
				string(types.StatusPending), formatTime(now), e.ID,
			); err != nil {
				return 0, fmt.Errorf("releasing entry %s: %w", e.ID, err)
			}
		default:
			return 0, fmt.Errorf("finding pending entry for %s: %w", e.AffectedLaw, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing release: %w", err)
	}
	return n, nil
}

// Delete removes an entry. Returns false when no entry had the ID.
func (q *QueueTable) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, types.ErrInvalidID
	}
	n, err := q.exec(ctx, "DELETE FROM cascade_affected_laws WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting entry %s: %w", id, err)
	}
	return n > 0, nil
}

// ClearSession deletes every entry of the session.
func (q *QueueTable) ClearSession(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, types.ErrInvalidSession
	}
	n, err := q.exec(ctx, "DELETE FROM cascade_affected_laws WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("clearing session %s: %w", sessionID, err)
	}
	return n, nil
}

// ClearProcessed deletes processed entries of one session, or of every
// session when sessionID is empty.
func (q *QueueTable) ClearProcessed(ctx context.Context, sessionID string) (int, error) {
	var (
		n   int
		err error
	)
	if sessionID == "" {
		n, err = q.exec(ctx, "DELETE FROM cascade_affected_laws WHERE status = 'processed'")
	} else {
		n, err = q.exec(ctx, "DELETE FROM cascade_affected_laws WHERE status = 'processed' AND session_id = ?", sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("clearing processed entries: %w", err)
	}
	return n, nil
}

func (q *QueueTable) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := q.backend.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// filterClause builds the WHERE clause for a Filter.
func filterClause(f types.Filter) (string, []any) {
	var conditions []string
	var args []any
	if f.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.UpdateType != "" {
		conditions = append(conditions, "update_type = ?")
		args = append(args, string(f.UpdateType))
	}
	if len(f.IDs) > 0 {
		conditions = append(conditions, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry converts one row selected with entryColumns into an AffectedLaw.
func scanEntry(row rowScanner) (*types.AffectedLaw, error) {
	var (
		e                                 types.AffectedLaw
		affected, updateType, status, raw string
		claimedAt                         sql.NullString
		createdAt, updatedAt              string
	)
	if err := row.Scan(&e.ID, &e.SessionID, &affected, &updateType, &status, &raw, &e.Layer,
		&e.LastError, &e.ClaimToken, &claimedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.AffectedLaw = types.LawID(affected)
	e.UpdateType = types.UpdateType(updateType)
	e.Status = types.Status(status)

	var err error
	if e.SourceLaws, err = decodeLawIDs(raw); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if claimedAt.Valid && claimedAt.String != "" {
		t, err := parseTime(claimedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing claimed_at: %w", err)
		}
		e.ClaimedAt = &t
	}
	return &e, nil
}

// decodeLawIDs parses a JSON array column. Empty text decodes to an empty
// slice.
func decodeLawIDs(raw string) ([]types.LawID, error) {
	ids := []types.LawID{}
	if raw == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decoding law list: %w", err)
	}
	return ids, nil
}

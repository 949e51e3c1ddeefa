package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Compile-time interface check: LawTable must implement LawStore.
var _ types.LawStore = (*LawTable)(nil)

// LawTable implements types.LawStore over the local laws table. Relation
// columns hold JSON arrays of law names.
type LawTable struct {
	backend *Backend
}

// GetLaw returns the relations of a law. A law that is not stored yields
// Exists false and no error.
func (lt *LawTable) GetLaw(ctx context.Context, id types.LawID) (*types.LawRelations, error) {
	rec, err := getLaw(ctx, lt.backend.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return &types.LawRelations{Name: id}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Relations(), nil
}

// Get returns the full stored record or ErrLawNotFound.
func (lt *LawTable) Get(ctx context.Context, id types.LawID) (*types.LawRecord, error) {
	rec, err := getLaw(ctx, lt.backend.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrLawNotFound
	}
	return rec, err
}

// Exists reports whether a law is stored.
func (lt *LawTable) Exists(ctx context.Context, id types.LawID) (bool, error) {
	var one int
	err := lt.backend.db.QueryRowContext(ctx, "SELECT 1 FROM laws WHERE name = ?", string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking law %s: %w", id, err)
	}
	return true, nil
}

// AppendEnacting adds ids missing from the law's enacting array inside one
// transaction and returns the resulting array.
func (lt *LawTable) AppendEnacting(ctx context.Context, id types.LawID, ids []types.LawID) ([]types.LawID, error) {
	tx, err := lt.backend.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, "SELECT enacting FROM laws WHERE name = ?", string(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrLawNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading enacting of %s: %w", id, err)
	}
	current, err := decodeLawIDs(raw)
	if err != nil {
		return nil, err
	}

	merged, added := types.UnionLawIDs(current, ids)
	if len(added) == 0 {
		return merged, nil
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshaling enacting: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE laws SET enacting = ?, updated_at = ? WHERE name = ?",
		string(encoded), formatTime(time.Now()), string(id),
	); err != nil {
		return nil, fmt.Errorf("updating enacting of %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing enacting of %s: %w", id, err)
	}
	return merged, nil
}

// Upsert inserts a law or replaces the stored record with the same name.
func (lt *LawTable) Upsert(ctx context.Context, rec *types.LawRecord) error {
	if err := rec.Name.Validate(); err != nil {
		return err
	}
	return upsertLaw(ctx, lt.backend.db, rec)
}

// Count returns the number of stored laws.
func (lt *LawTable) Count(ctx context.Context) (int, error) {
	var n int
	if err := lt.backend.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM laws").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting laws: %w", err)
	}
	return n, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertLaw(ctx context.Context, db execer, rec *types.LawRecord) error {
	cols := make([]string, 0, 4)
	for _, list := range [][]types.LawID{rec.Amending, rec.Rescinding, rec.EnactedBy, rec.Enacting} {
		data, err := json.Marshal(types.UniqueLawIDs(list))
		if err != nil {
			return fmt.Errorf("marshaling relations of %s: %w", rec.Name, err)
		}
		cols = append(cols, string(data))
	}
	_, err := db.ExecContext(ctx, `INSERT INTO laws (name, title_en, amending, rescinding, enacted_by, enacting, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    title_en = excluded.title_en,
    amending = excluded.amending,
    rescinding = excluded.rescinding,
    enacted_by = excluded.enacted_by,
    enacting = excluded.enacting,
    updated_at = excluded.updated_at`,
		string(rec.Name), rec.TitleEN, cols[0], cols[1], cols[2], cols[3], formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upserting law %s: %w", rec.Name, err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getLaw(ctx context.Context, db queryRower, id types.LawID) (*types.LawRecord, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	var (
		rec                                        types.LawRecord
		name, amending, rescinding, enactedBy, enc string
	)
	err := db.QueryRowContext(ctx,
		"SELECT name, title_en, amending, rescinding, enacted_by, enacting FROM laws WHERE name = ?",
		string(id),
	).Scan(&name, &rec.TitleEN, &amending, &rescinding, &enactedBy, &enc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("getting law %s: %w", id, err)
	}
	rec.Name = types.LawID(name)
	for _, c := range []struct {
		raw string
		dst *[]types.LawID
	}{
		{amending, &rec.Amending},
		{rescinding, &rec.Rescinding},
		{enactedBy, &rec.EnactedBy},
		{enc, &rec.Enacting},
	} {
		ids, err := decodeLawIDs(c.raw)
		if err != nil {
			return nil, fmt.Errorf("law %s: %w", id, err)
		}
		*c.dst = ids
	}
	return &rec, nil
}

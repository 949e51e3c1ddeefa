// Package postgres implements the law store over the production uk_lrt
// table. Relation columns (amending, rescinding, enacted_by, enacting) are
// read through to_jsonb so both jsonb and text[] column types decode the same
// way.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Compile-time interface check: Store must implement LawStore.
var _ types.LawStore = (*Store)(nil)

const driverName = "pgx"

const (
	selectLawSQL = `SELECT name,
    COALESCE(to_jsonb(amending), '[]'::jsonb),
    COALESCE(to_jsonb(rescinding), '[]'::jsonb),
    COALESCE(to_jsonb(enacted_by), '[]'::jsonb),
    COALESCE(to_jsonb(enacting), '[]'::jsonb)
FROM uk_lrt WHERE name = $1`
	existsLawSQL      = `SELECT EXISTS (SELECT 1 FROM uk_lrt WHERE name = $1)`
	lockEnactingSQL   = `SELECT COALESCE(to_jsonb(enacting), '[]'::jsonb) FROM uk_lrt WHERE name = $1 FOR UPDATE`
	updateEnactingSQL = `UPDATE uk_lrt SET enacting = $2::jsonb, updated_at = NOW() WHERE name = $1`
)

// Store reads and patches laws in uk_lrt.
type Store struct {
	db              *sql.DB
	retryMaxElapsed time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithRetryMaxElapsed bounds how long transient errors are retried.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(s *Store) { s.retryMaxElapsed = d }
}

// Open connects to Postgres using dsn and verifies the connection, retrying
// transient connection errors.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, types.ErrPostgresDSNEmpty
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{db: db, retryMaxElapsed: types.DefaultRetryMaxElapsed}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetLaw returns the relations of a law; Exists is false when no row has
// the name.
func (s *Store) GetLaw(ctx context.Context, id types.LawID) (*types.LawRelations, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	var (
		name                                         string
		amending, rescinding, enactedBy, enactingRaw []byte
	)
	err := s.withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx, selectLawSQL, string(id)).
			Scan(&name, &amending, &rescinding, &enactedBy, &enactingRaw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return &types.LawRelations{Name: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting law %s: %w", id, err)
	}

	rel := &types.LawRelations{Name: types.LawID(name), Exists: true}
	for _, c := range []struct {
		raw []byte
		dst *[]types.LawID
	}{
		{amending, &rel.Amending},
		{rescinding, &rel.Rescinding},
		{enactedBy, &rel.EnactedBy},
		{enactingRaw, &rel.Enacting},
	} {
		ids, err := decodeLawIDs(c.raw)
		if err != nil {
			return nil, fmt.Errorf("law %s: %w", id, err)
		}
		*c.dst = ids
	}
	return rel, nil
}

// Exists reports whether uk_lrt has a row with the name.
func (s *Store) Exists(ctx context.Context, id types.LawID) (bool, error) {
	var ok bool
	err := s.withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx, existsLawSQL, string(id)).Scan(&ok)
	})
	if err != nil {
		return false, fmt.Errorf("checking law %s: %w", id, err)
	}
	return ok, nil
}

// AppendEnacting locks the row, appends ids not already present and writes
// the merged array back in one transaction.
func (s *Store) AppendEnacting(ctx context.Context, id types.LawID, ids []types.LawID) ([]types.LawID, error) {
	var merged []types.LawID
	err := s.withRetry(ctx, func() error {
		var err error
		merged, err = s.appendEnactingTx(ctx, id, ids)
		return err
	})
	return merged, err
}

func (s *Store) appendEnactingTx(ctx context.Context, id types.LawID, ids []types.LawID) ([]types.LawID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx, lockEnactingSQL, string(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrLawNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking law %s: %w", id, err)
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
	if _, err := tx.ExecContext(ctx, updateEnactingSQL, string(id), string(encoded)); err != nil {
		return nil, fmt.Errorf("updating enacting of %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing enacting of %s: %w", id, err)
	}
	return merged, nil
}

// withRetry executes an operation with retry for transient errors.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.retryMaxElapsed
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// Serialization failures and deadlocks are safe to retry.
var retryableSQLStates = map[string]bool{
	"40001": true,
	"40P01": true,
	"57P01": true,
}

// isRetryableError returns true for transient connection or serialization
// errors.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, sql.ErrNoRows) || errors.Is(err, types.ErrLawNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableSQLStates[pgErr.Code]
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{"bad connection", "connection refused", "connection reset", "broken pipe", "i/o timeout", "unexpected eof"} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

func decodeLawIDs(raw []byte) ([]types.LawID, error) {
	ids := []types.LawID{}
	if len(raw) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decoding law list: %w", err)
	}
	if ids == nil {
		ids = []types.LawID{}
	}
	return ids, nil
}

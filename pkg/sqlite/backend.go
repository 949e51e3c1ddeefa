// Package sqlite provides the public API for the SQLite cascade backend.
// This package exposes the factory function for opening the queue and local
// law store while keeping implementation details internal.
package sqlite

import (
	"context"

	"github.com/mesh-intelligence/lawcascade/internal/sqlite"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Store bundles the cascade queue and the local law store of one database.
type Store struct {
	Queue types.Queue
	Laws  types.LawStore

	backend *sqlite.Backend
}

// Open opens (or creates) the SQLite database in config.DataDir.
//
// Example:
//
//	store, err := sqlite.Open(ctx, types.Config{DataDir: ".cascade"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(ctx context.Context, config types.Config) (*Store, error) {
	b, err := sqlite.Open(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Store{Queue: b.Queue(), Laws: b.Laws(), backend: b}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.backend.Close()
}

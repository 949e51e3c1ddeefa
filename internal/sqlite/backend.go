// Package sqlite implements the SQLite storage backend for the cascade
// queue and the local law table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// DBFileName is the database file created inside DataDir.
const DBFileName = "cascade.db"

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Backend owns the SQLite connection and hands out table accessors.
type Backend struct {
	mu     sync.Mutex
	closed bool
	config types.Config
	path   string
	db     *sql.DB

	queue *QueueTable
	laws  *LawTable
}

// Open creates DataDir if needed, opens (or creates) the database file,
// applies pragmas and schema, and returns a ready Backend. Existing rows are
// kept.
func Open(ctx context.Context, config types.Config) (*Backend, error) {
	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	path := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	// SQLite allows one writer; a single connection also keeps pragmas
	// applied for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	b := &Backend{config: config, path: path, db: db}
	b.queue = &QueueTable{backend: b}
	b.laws = &LawTable{backend: b}
	return b, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}
	for _, ddl := range schemaDDL {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	for _, ddl := range indexDDL {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

// Queue returns the cascade queue accessor.
func (b *Backend) Queue() *QueueTable { return b.queue }

// Laws returns the local law table accessor.
func (b *Backend) Laws() *LawTable { return b.laws }

// Path returns the database file path.
func (b *Backend) Path() string { return b.path }

// Close releases the connection. Close is idempotent.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// generateUUID generates a new UUID v7 for entry IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

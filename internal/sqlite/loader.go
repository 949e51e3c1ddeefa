// JSONL loading into the local law table.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
)

// LoadStats reports what a JSONL law import did.
type LoadStats struct {
	Read    int `json:"read"`
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}

// ImportLaws reads a laws JSONL file and upserts every record into the law
// table. Loading is transactional: all records are written or none are.
// Malformed lines and records without a valid name are skipped. Unknown
// fields are ignored so full uk_lrt exports load unchanged.
func (b *Backend) ImportLaws(ctx context.Context, path string) (LoadStats, error) {
	var stats LoadStats
	records, err := readJSONL(path)
	if err != nil {
		return stats, err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, raw := range records {
		stats.Read++
		var l lawJSON
		if err := json.Unmarshal(raw, &l); err != nil {
			stats.Skipped++
			continue
		}
		rec := l.record()
		if rec.Name.Validate() != nil {
			stats.Skipped++
			continue
		}
		if err := upsertLaw(ctx, tx, rec); err != nil {
			return LoadStats{}, fmt.Errorf("loading %s: %w", path, err)
		}
		stats.Loaded++
	}

	if err := tx.Commit(); err != nil {
		return LoadStats{}, fmt.Errorf("committing load transaction: %w", err)
	}
	return stats, nil
}

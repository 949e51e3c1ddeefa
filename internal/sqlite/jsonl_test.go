package sqlite

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

func TestReadJSONLSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	content := `{"name":"A"}

not json
{"name":"B","future_field":42}
{"name":
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, err := readJSONL(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = readJSONL(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestWriteJSONLReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	require.NoError(t, writeJSONL(path, []json.RawMessage{
		json.RawMessage(`{"a":1}`),
		json.RawMessage(`{"a":2}`),
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestImportLaws(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	path := filepath.Join(t.TempDir(), "laws.jsonl")
	content := `{"name":"UK_uksi_2025_1","title_en":"Source","amending":["UK_uksi_2025_100"],"rescinding":null,"enacted_by":["UK_ukpga_1974_37"],"enacting":[],"family":"OH&S"}
{"name":"UK_uksi_2025_100","amending":["UK_uksi_2025_200"]}
{"name":""}
{"name":"has space"}
broken line
{"name":"UK_ukpga_1974_37","enacting":["UK_uksi_2020_5"]}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	stats, err := b.ImportLaws(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Read: 5, Loaded: 3, Skipped: 2}, stats)

	rel, err := b.Laws().GetLaw(ctx, "UK_uksi_2025_1")
	require.NoError(t, err)
	assert.Equal(t, []types.LawID{"UK_uksi_2025_100"}, rel.Amending)
	assert.Empty(t, rel.Rescinding)

	rec, err := b.Laws().Get(ctx, "UK_ukpga_1974_37")
	require.NoError(t, err)
	assert.Equal(t, []types.LawID{"UK_uksi_2020_5"}, rec.Enacting)

	// Re-importing is an upsert, not a duplicate.
	_, err = b.ImportLaws(ctx, path)
	require.NoError(t, err)
	n, err := b.Laws().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestExportSession(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)
	q := b.Queue()

	applyLayer(t, q, "s1", 1, reparse("A", "S1"), enacting("P", "S1"))
	applyLayer(t, q, "s2", 1, reparse("C", "S2"))

	path := filepath.Join(t.TempDir(), "exports", "s1.jsonl")
	n, err := b.ExportSession(ctx, "s1", path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := readJSONL(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	var first entryJSON
	require.NoError(t, json.Unmarshal(records[0], &first))
	assert.Equal(t, "s1", first.SessionID)
	assert.Equal(t, "A", first.AffectedLaw)
	assert.Equal(t, []string{"S1"}, first.SourceLaws)
	_, err = time.Parse(timeFormat, first.CreatedAt)
	assert.NoError(t, err)

	_, err = b.ExportSession(ctx, "", path)
	assert.ErrorIs(t, err, types.ErrInvalidSession)
}

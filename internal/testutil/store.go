package testutil

import (
	"context"
	"testing"

	"github.com/mesh-intelligence/lawcascade/internal/sqlite"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// NewStore opens an isolated SQLite backend in a temp dir. The backend is
// closed when the test completes.
func NewStore(t testing.TB) *sqlite.Backend {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.DataDir = t.TempDir()
	b, err := sqlite.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("opening sqlite backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// ScenarioLaws returns the three-law chain used across cascade tests:
// UK_uksi_2025_1 amends UK_uksi_2025_100, which amends UK_uksi_2025_200.
func ScenarioLaws() *Laws {
	return NewLaws(
		types.LawRecord{Name: "UK_uksi_2025_1", Amending: []types.LawID{"UK_uksi_2025_100"}},
		types.LawRecord{Name: "UK_uksi_2025_100", Amending: []types.LawID{"UK_uksi_2025_200"}},
		types.LawRecord{Name: "UK_uksi_2025_200"},
	)
}

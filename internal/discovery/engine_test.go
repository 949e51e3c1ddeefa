package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/lawcascade/internal/resolver"
	"github.com/mesh-intelligence/lawcascade/internal/testutil"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

func noRetry() backoff.BackOff { return &backoff.StopBackOff{} }

func fastRetry() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
}

func setupEngine(t *testing.T, laws *testutil.Laws, opts ...Option) (*Engine, types.Queue) {
	t.Helper()
	q := testutil.NewStore(t).Queue()
	opts = append([]Option{WithBackOff(noRetry)}, opts...)
	return New(resolver.New(laws), q, opts...), q
}

func list(t *testing.T, q types.Queue, session string) []*types.AffectedLaw {
	t.Helper()
	entries, err := q.List(context.Background(), types.Filter{SessionID: session})
	require.NoError(t, err)
	return entries
}

func byLaw(entries []*types.AffectedLaw) map[types.LawID]*types.AffectedLaw {
	m := make(map[types.LawID]*types.AffectedLaw, len(entries))
	for _, e := range entries {
		m[e.AffectedLaw] = e
	}
	return m
}

// chain returns laws L0 -> L1 -> ... -> Ln where each amends the next.
func chain(n int) *testutil.Laws {
	laws := testutil.NewLaws()
	for i := 0; i <= n; i++ {
		r := types.LawRecord{Name: lawName(i)}
		if i < n {
			r.Amending = []types.LawID{lawName(i + 1)}
		}
		laws.Put(r)
	}
	return laws
}

func lawName(i int) types.LawID {
	return types.LawID("UK_uksi_2024_" + string(rune('0'+i)))
}

func TestDiscoverScenario(t *testing.T) {
	ctx := context.Background()
	e, q := setupEngine(t, testutil.ScenarioLaws())

	report, err := e.Discover(ctx, Request{SessionID: "2025-01-01-to-2025-01-31", Sources: []types.LawID{"UK_uksi_2025_1"}})
	require.NoError(t, err)

	assert.Equal(t, types.StopFrontierEmpty, report.StoppedBy)
	assert.Equal(t, 1, report.StartLayer)
	assert.Equal(t, 2, report.Inserted())
	require.Len(t, report.Layers, 3)
	assert.Equal(t, []types.LawID{"UK_uksi_2025_1"}, report.Layers[0].Frontier)
	assert.Equal(t, []types.LawID{"UK_uksi_2025_100"}, report.Layers[1].Frontier)
	assert.Equal(t, []types.LawID{"UK_uksi_2025_200"}, report.Layers[2].Frontier)
	assert.Zero(t, report.Layers[2].Inserted)

	entries := byLaw(list(t, q, "2025-01-01-to-2025-01-31"))
	require.Len(t, entries, 2)

	e100 := entries["UK_uksi_2025_100"]
	require.NotNil(t, e100)
	assert.Equal(t, 1, e100.Layer)
	assert.Equal(t, types.StatusPending, e100.Status)
	assert.Equal(t, types.UpdateReparse, e100.UpdateType)
	assert.Equal(t, []types.LawID{"UK_uksi_2025_1"}, e100.SourceLaws)

	e200 := entries["UK_uksi_2025_200"]
	require.NotNil(t, e200)
	assert.Equal(t, 2, e200.Layer)
	assert.Equal(t, []types.LawID{"UK_uksi_2025_100"}, e200.SourceLaws)

	n, err := q.ClearSession(ctx, "2025-01-01-to-2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDiscoverIdempotent(t *testing.T) {
	ctx := context.Background()
	laws := testutil.NewLaws(
		types.LawRecord{Name: "S", Amending: []types.LawID{"A", "B"}, EnactedBy: []types.LawID{"P"}},
		types.LawRecord{Name: "A", Rescinding: []types.LawID{"C"}},
		types.LawRecord{Name: "B"},
		types.LawRecord{Name: "C"},
		types.LawRecord{Name: "P"},
	)
	e, q := setupEngine(t, laws)
	req := Request{SessionID: "s1", Sources: []types.LawID{"S"}}

	first, err := e.Discover(ctx, req)
	require.NoError(t, err)
	before := list(t, q, "s1")
	require.Len(t, before, 4)

	second, err := e.Discover(ctx, req)
	require.NoError(t, err)
	after := list(t, q, "s1")

	assert.Equal(t, 4, first.Inserted())
	assert.Zero(t, second.Inserted())
	assert.Zero(t, second.Merged())
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].SourceLaws, after[i].SourceLaws)
		assert.Equal(t, before[i].Layer, after[i].Layer)
	}
}

func TestDiscoverLayerMonotonic(t *testing.T) {
	ctx := context.Background()
	// S amends A and B; A also amends B. B is first seen at layer 1 and must
	// keep that layer when A adds itself as a source at layer 2.
	laws := testutil.NewLaws(
		types.LawRecord{Name: "S", Amending: []types.LawID{"A", "B"}},
		types.LawRecord{Name: "A", Amending: []types.LawID{"B"}},
		types.LawRecord{Name: "B"},
	)
	e, q := setupEngine(t, laws)

	report, err := e.Discover(ctx, Request{SessionID: "s1", Sources: []types.LawID{"S"}})
	require.NoError(t, err)
	require.Len(t, report.Layers, 2)
	assert.Equal(t, 1, report.Layers[1].Merged)

	b := byLaw(list(t, q, "s1"))["B"]
	require.NotNil(t, b)
	assert.Equal(t, 1, b.Layer)
	assert.Equal(t, []types.LawID{"S", "A"}, b.SourceLaws)
}

func TestDiscoverDepthCap(t *testing.T) {
	tests := []struct {
		name         string
		maxAutoLayer int
		wantEntries  int
		wantDeferred types.LawID
	}{
		{name: "default cap defers layer 4", maxAutoLayer: 0, wantEntries: 4, wantDeferred: lawName(4)},
		{name: "request cap of one defers layer 2", maxAutoLayer: 1, wantEntries: 2, wantDeferred: lawName(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, q := setupEngine(t, chain(7))
			report, err := e.Discover(context.Background(), Request{
				SessionID:    "s1",
				Sources:      []types.LawID{lawName(0)},
				MaxAutoLayer: tt.maxAutoLayer,
			})
			require.NoError(t, err)
			assert.Equal(t, types.StopDepthCeiling, report.StoppedBy)

			entries := list(t, q, "s1")
			require.Len(t, entries, tt.wantEntries)
			for _, entry := range entries {
				if entry.AffectedLaw == tt.wantDeferred {
					assert.Equal(t, types.StatusDeferred, entry.Status)
				} else {
					assert.Equal(t, types.StatusPending, entry.Status, "layer %d", entry.Layer)
				}
			}
			last := report.Layers[len(report.Layers)-1]
			assert.Equal(t, 1, last.Deferred)
		})
	}
}

func TestDiscoverStartLayer(t *testing.T) {
	e, q := setupEngine(t, chain(3))

	report, err := e.Discover(context.Background(), Request{SessionID: "s1", Sources: []types.LawID{lawName(0)}, StartLayer: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, report.StartLayer)
	assert.Equal(t, types.StopDepthCeiling, report.StoppedBy)

	entries := list(t, q, "s1")
	require.Len(t, entries, 1)
	assert.Equal(t, 4, entries[0].Layer)
	assert.Equal(t, types.StatusDeferred, entries[0].Status)

	// A continuation beyond the ceiling still writes its first layer.
	report, err = e.Discover(context.Background(), Request{SessionID: "s2", Sources: []types.LawID{lawName(0)}, StartLayer: 5})
	require.NoError(t, err)
	require.Len(t, report.Layers, 1)
	assert.Equal(t, 1, report.Layers[0].Deferred)
	assert.Equal(t, types.StopDepthCeiling, report.StoppedBy)

	entries = list(t, q, "s2")
	require.Len(t, entries, 1)
	assert.Equal(t, lawName(1), entries[0].AffectedLaw)
	assert.Equal(t, 5, entries[0].Layer)
	assert.Equal(t, types.StatusDeferred, entries[0].Status)
}

func TestDiscoverDirectHitBesideDeferred(t *testing.T) {
	ctx := context.Background()
	laws := chain(5)
	source := types.LawID("UK_uksi_2025_9")
	laws.Put(types.LawRecord{Name: source, Amending: []types.LawID{lawName(4)}})
	e, q := setupEngine(t, laws)

	_, err := e.Discover(ctx, Request{SessionID: "s1", Sources: []types.LawID{lawName(0)}})
	require.NoError(t, err)
	deferred := byLaw(list(t, q, "s1"))[lawName(4)]
	require.NotNil(t, deferred)
	require.Equal(t, types.StatusDeferred, deferred.Status)

	report, err := e.Discover(ctx, Request{SessionID: "s1", Sources: []types.LawID{source}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted())
	assert.Equal(t, 0, report.Merged())

	var l4 []*types.AffectedLaw
	var l5 *types.AffectedLaw
	for _, entry := range list(t, q, "s1") {
		switch entry.AffectedLaw {
		case lawName(4):
			l4 = append(l4, entry)
		case lawName(5):
			l5 = entry
		}
	}
	require.Len(t, l4, 2)
	for _, entry := range l4 {
		if entry.ID == deferred.ID {
			assert.Equal(t, types.StatusDeferred, entry.Status)
			assert.Equal(t, []types.LawID{lawName(3)}, entry.SourceLaws)
			continue
		}
		assert.Equal(t, types.StatusPending, entry.Status)
		assert.Equal(t, 1, entry.Layer)
		assert.Equal(t, []types.LawID{source}, entry.SourceLaws)
	}
	require.NotNil(t, l5)
	assert.Equal(t, types.StatusPending, l5.Status)
	assert.Equal(t, 2, l5.Layer)
}

func TestDiscoverCycle(t *testing.T) {
	laws := testutil.NewLaws(
		types.LawRecord{Name: "A", Amending: []types.LawID{"B"}},
		types.LawRecord{Name: "B", Amending: []types.LawID{"A", "B"}},
	)
	e, q := setupEngine(t, laws)

	report, err := e.Discover(context.Background(), Request{SessionID: "s1", Sources: []types.LawID{"A"}})
	require.NoError(t, err)
	assert.Equal(t, types.StopFrontierEmpty, report.StoppedBy)
	assert.Len(t, report.Layers, 2)

	entries := byLaw(list(t, q, "s1"))
	require.Len(t, entries, 2)
	assert.Equal(t, []types.LawID{"A"}, entries["B"].SourceLaws)
	assert.Equal(t, []types.LawID{"B"}, entries["A"].SourceLaws)
	for _, entry := range entries {
		assert.NotContains(t, entry.SourceLaws, entry.AffectedLaw)
	}
}

func TestDiscoverEnactingLink(t *testing.T) {
	laws := testutil.NewLaws(
		types.LawRecord{Name: "S", EnactedBy: []types.LawID{"P"}},
		types.LawRecord{Name: "P"},
	)
	e, q := setupEngine(t, laws)

	_, err := e.Discover(context.Background(), Request{SessionID: "s1", Sources: []types.LawID{"S"}})
	require.NoError(t, err)

	entries := list(t, q, "s1")
	require.Len(t, entries, 1)
	assert.Equal(t, types.LawID("P"), entries[0].AffectedLaw)
	assert.Equal(t, types.UpdateEnactingLink, entries[0].UpdateType)
}

func TestDiscoverMissingPolicy(t *testing.T) {
	tests := []struct {
		name       string
		policy     types.MissingPolicy
		wantStatus types.Status
		wantSkip   int
	}{
		{name: "queue", policy: types.MissingQueue, wantStatus: types.StatusPending},
		{name: "skip", policy: types.MissingSkip, wantStatus: types.StatusSkipped, wantSkip: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			laws := testutil.NewLaws(types.LawRecord{Name: "S", Amending: []types.LawID{"GONE"}})
			e, q := setupEngine(t, laws, WithMissingPolicy(tt.policy))

			report, err := e.Discover(context.Background(), Request{SessionID: "s1", Sources: []types.LawID{"S"}})
			require.NoError(t, err)
			assert.Equal(t, []types.MissingLaw{{Law: "GONE", ReferencedBy: "S", Kind: types.UpdateReparse}}, report.Missing)
			require.Len(t, report.Layers, 1)
			assert.Equal(t, tt.wantSkip, report.Layers[0].Skipped)

			entries := list(t, q, "s1")
			require.Len(t, entries, 1)
			assert.Equal(t, types.LawID("GONE"), entries[0].AffectedLaw)
			assert.Equal(t, tt.wantStatus, entries[0].Status)
		})
	}
}

func TestDiscoverSessionIsolation(t *testing.T) {
	ctx := context.Background()
	e, q := setupEngine(t, testutil.ScenarioLaws())

	for _, session := range []string{"s1", "s2"} {
		report, err := e.Discover(ctx, Request{SessionID: session, Sources: []types.LawID{"UK_uksi_2025_1"}})
		require.NoError(t, err)
		assert.Equal(t, 2, report.Inserted(), session)
	}

	n, err := q.ClearSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, list(t, q, "s2"), 2)
}

func TestDiscoverLayerFailureWritesNothing(t *testing.T) {
	laws := testutil.ScenarioLaws()
	boom := errors.New("connection reset by peer")
	laws.FailGet("UK_uksi_2025_100", boom)
	e, q := setupEngine(t, laws)

	report, err := e.Discover(context.Background(), Request{SessionID: "s1", Sources: []types.LawID{"UK_uksi_2025_1"}})
	require.ErrorIs(t, err, boom)
	require.NotNil(t, report)
	assert.Len(t, report.Layers, 1)

	entries := list(t, q, "s1")
	require.Len(t, entries, 1)
	assert.Equal(t, types.LawID("UK_uksi_2025_100"), entries[0].AffectedLaw)
}

// flakyResolver fails the first n calls.
type flakyResolver struct {
	mu    sync.Mutex
	inner Resolver
	fails int
	calls int
}

func (f *flakyResolver) FindAffected(ctx context.Context, ids []types.LawID) (*types.Resolution, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.fails
	f.mu.Unlock()
	if fail {
		return nil, errors.New("database is locked")
	}
	return f.inner.FindAffected(ctx, ids)
}

func TestDiscoverRetriesTransientErrors(t *testing.T) {
	r := &flakyResolver{inner: resolver.New(testutil.ScenarioLaws()), fails: 2}
	q := testutil.NewStore(t).Queue()
	e := New(r, q, WithBackOff(fastRetry))

	report, err := e.Discover(context.Background(), Request{SessionID: "s1", Sources: []types.LawID{"UK_uksi_2025_1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted())
	assert.Equal(t, 5, r.calls)
}

func TestDiscoverCancelledIsNotRetried(t *testing.T) {
	e, _ := setupEngine(t, testutil.ScenarioLaws(), WithBackOff(fastRetry))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Discover(ctx, Request{SessionID: "s1", Sources: []types.LawID{"UK_uksi_2025_1"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscoverValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "empty session", req: Request{Sources: []types.LawID{"S"}}, wantErr: types.ErrInvalidSession},
		{name: "no sources", req: Request{SessionID: "s1"}, wantErr: types.ErrInvalidLawID},
		{name: "bad source", req: Request{SessionID: "s1", Sources: []types.LawID{"UK uksi"}}, wantErr: types.ErrInvalidLawID},
		{name: "negative start", req: Request{SessionID: "s1", Sources: []types.LawID{"S"}, StartLayer: -1}, wantErr: types.ErrInvalidLayer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := setupEngine(t, testutil.NewLaws())
			_, err := e.Discover(context.Background(), tt.req)
			assert.True(t, types.IsValidation(err))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

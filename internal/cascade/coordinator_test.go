package cascade

import (
	"context"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/lawcascade/internal/discovery"
	"github.com/mesh-intelligence/lawcascade/internal/testutil"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

const session = "2025-01-01-to-2025-01-31"

type fixture struct {
	c      *Coordinator
	queue  types.Queue
	laws   *testutil.Laws
	parser *testutil.Parser
}

func setup(t *testing.T, laws *testutil.Laws) *fixture {
	t.Helper()
	q := testutil.NewStore(t).Queue()
	p := testutil.NewParser(laws)
	c := New(q, laws,
		WithReparser(p),
		WithImporter(p),
		WithEngineOptions(discovery.WithBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} })),
	)
	return &fixture{c: c, queue: q, laws: laws, parser: p}
}

func (f *fixture) entries(t *testing.T, filter types.Filter) []*types.AffectedLaw {
	t.Helper()
	out, err := f.queue.List(context.Background(), filter)
	require.NoError(t, err)
	return out
}

// entryFor returns the entry for law in the default session.
func (f *fixture) entryFor(t *testing.T, law types.LawID) *types.AffectedLaw {
	t.Helper()
	for _, e := range f.entries(t, types.Filter{SessionID: session}) {
		if e.AffectedLaw == law {
			return e
		}
	}
	t.Fatalf("no entry for %s", law)
	return nil
}

func TestScenarioDiscoverListClear(t *testing.T) {
	ctx := context.Background()
	f := setup(t, testutil.ScenarioLaws())

	report, err := f.c.StartDiscovery(ctx, session, []types.LawID{"UK_uksi_2025_1"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted())

	listing, err := f.c.List(ctx, types.Filter{SessionID: session})
	require.NoError(t, err)
	require.Len(t, listing.Reparse, 2)
	assert.Empty(t, listing.EnactingLink)
	assert.Equal(t, types.LawID("UK_uksi_2025_100"), listing.Reparse[0].AffectedLaw)
	assert.Equal(t, 1, listing.Reparse[0].Layer)
	assert.Equal(t, types.LawID("UK_uksi_2025_200"), listing.Reparse[1].AffectedLaw)
	assert.Equal(t, 2, listing.Reparse[1].Layer)
	assert.Equal(t, 2, listing.Summary.Total)
	assert.Equal(t, 2, listing.Summary.TotalPending)
	assert.Equal(t, map[int]int{1: 1, 2: 1}, listing.Summary.ByLayer)

	n, err := f.c.ClearSession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	listing, err = f.c.List(ctx, types.Filter{SessionID: session})
	require.NoError(t, err)
	assert.Empty(t, listing.Reparse)
	assert.Zero(t, listing.Summary.Total)
}

func TestSessionIsolation(t *testing.T) {
	ctx := context.Background()
	f := setup(t, testutil.ScenarioLaws())

	for _, s := range []string{"s1", "s2"} {
		_, err := f.c.StartDiscovery(ctx, s, []types.LawID{"UK_uksi_2025_1"})
		require.NoError(t, err)
	}

	n, err := f.c.ClearSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sessions, err := f.c.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s2", sessions[0].SessionID)
	assert.Equal(t, 2, sessions[0].Pending)

	n, err = f.c.ClearSession(ctx, "never-existed")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunBatchReparseWithContinuation(t *testing.T) {
	ctx := context.Background()
	laws := testutil.ScenarioLaws()
	laws.Put(types.LawRecord{Name: "UK_uksi_2025_300"})
	f := setup(t, laws)

	_, err := f.c.StartDiscovery(ctx, session, []types.LawID{"UK_uksi_2025_1"})
	require.NoError(t, err)

	// The reparse of 200 reveals that it amends 300.
	laws.Put(types.LawRecord{Name: "UK_uksi_2025_200", Amending: []types.LawID{"UK_uksi_2025_300"}})

	result, err := f.c.RunBatch(ctx, BatchRequest{
		Operator:   types.OperatorReparse,
		SessionID:  session,
		AllPending: true,
		Continue:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Success)
	assert.Empty(t, result.ContinuationError)
	require.NotNil(t, result.Continuation)
	assert.Equal(t, 1, result.Continuation.Inserted())

	e300 := f.entryFor(t, "UK_uksi_2025_300")
	assert.Equal(t, 3, e300.Layer)
	assert.Equal(t, types.StatusPending, e300.Status)
	assert.Equal(t, []types.LawID{"UK_uksi_2025_200"}, e300.SourceLaws)
}

func TestRunBatchWithoutContinue(t *testing.T) {
	ctx := context.Background()
	f := setup(t, testutil.ScenarioLaws())
	_, err := f.c.StartDiscovery(ctx, session, []types.LawID{"UK_uksi_2025_1"})
	require.NoError(t, err)

	e100 := f.entryFor(t, "UK_uksi_2025_100")
	result, err := f.c.RunBatch(ctx, BatchRequest{Operator: types.OperatorReparse, EntryIDs: []string{e100.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Nil(t, result.Continuation)
}

func TestRunBatchImportRequeues(t *testing.T) {
	ctx := context.Background()
	laws := testutil.NewLaws(
		types.LawRecord{Name: "S", Amending: []types.LawID{"GONE"}},
		types.LawRecord{Name: "X"},
	)
	f := setup(t, laws)
	f.parser.OnImport(types.LawRecord{Name: "GONE", Amending: []types.LawID{"X"}})

	report, err := f.c.StartDiscovery(ctx, session, []types.LawID{"S"})
	require.NoError(t, err)
	require.Len(t, report.Missing, 1)

	result, err := f.c.RunBatch(ctx, BatchRequest{Operator: types.OperatorImport, SessionID: session, AllPending: true})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, types.ResultSuccess, result.Results[0].Status)
	require.NotNil(t, result.Continuation)
	assert.Equal(t, 1, result.Continuation.Inserted())

	assert.Equal(t, types.StatusProcessed, f.entryFor(t, "GONE").Status)
	x := f.entryFor(t, "X")
	assert.Equal(t, 2, x.Layer)
	assert.Equal(t, []types.LawID{"GONE"}, x.SourceLaws)

	// Nothing is left to import.
	again, err := f.c.RunBatch(ctx, BatchRequest{Operator: types.OperatorImport, SessionID: session, AllPending: true})
	require.NoError(t, err)
	assert.Zero(t, again.Total)
}

func TestRunBatchValidation(t *testing.T) {
	f := setup(t, testutil.ScenarioLaws())
	tests := []struct {
		name    string
		req     BatchRequest
		wantErr error
	}{
		{name: "unknown operator", req: BatchRequest{Operator: "rebuild", EntryIDs: []string{"x"}}, wantErr: types.ErrUnknownOperator},
		{name: "no entries", req: BatchRequest{Operator: types.OperatorReparse}, wantErr: types.ErrInvalidID},
		{name: "ids and all pending", req: BatchRequest{Operator: types.OperatorReparse, EntryIDs: []string{"x"}, SessionID: session, AllPending: true}, wantErr: types.ErrInvalidID},
		{name: "all pending without session", req: BatchRequest{Operator: types.OperatorReparse, AllPending: true}, wantErr: types.ErrInvalidSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.c.RunBatch(context.Background(), tt.req)
			assert.True(t, types.IsValidation(err))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRunBatchKindMismatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t, testutil.ScenarioLaws())
	_, err := f.c.StartDiscovery(ctx, session, []types.LawID{"UK_uksi_2025_1"})
	require.NoError(t, err)

	e100 := f.entryFor(t, "UK_uksi_2025_100")
	_, err = f.c.RunBatch(ctx, BatchRequest{Operator: types.OperatorEnactingLink, EntryIDs: []string{e100.ID}})
	assert.ErrorIs(t, err, types.ErrKindMismatch)
	assert.Equal(t, types.StatusPending, f.entryFor(t, "UK_uksi_2025_100").Status)
}

func TestContinueDiscovery(t *testing.T) {
	ctx := context.Background()
	laws := testutil.ScenarioLaws()
	f := setup(t, laws)
	_, err := f.c.StartDiscovery(ctx, session, []types.LawID{"UK_uksi_2025_1"})
	require.NoError(t, err)
	e100 := f.entryFor(t, "UK_uksi_2025_100")

	_, err = f.c.ContinueDiscovery(ctx, session, []string{e100.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = f.c.RunBatch(ctx, BatchRequest{Operator: types.OperatorReparse, EntryIDs: []string{e100.ID}})
	require.NoError(t, err)

	laws.Put(types.LawRecord{Name: "UK_uksi_2025_100", Amending: []types.LawID{"UK_uksi_2025_200", "UK_uksi_2025_1"}})
	report, err := f.c.ContinueDiscovery(ctx, session, []string{e100.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, report.StartLayer)
	assert.Equal(t, 1, report.Inserted())

	e1 := f.entryFor(t, "UK_uksi_2025_1")
	assert.Equal(t, 2, e1.Layer)

	_, err = f.c.ContinueDiscovery(ctx, "other-session", []string{e100.ID})
	assert.True(t, types.IsValidation(err))
}

func TestReleaseAndSkip(t *testing.T) {
	ctx := context.Background()
	laws := testutil.NewLaws(
		types.LawRecord{Name: "L0", Amending: []types.LawID{"L1"}},
		types.LawRecord{Name: "L1", Amending: []types.LawID{"L2"}},
		types.LawRecord{Name: "L2"},
	)
	q := testutil.NewStore(t).Queue()
	cfg := types.DefaultConfig()
	cfg.MaxAutoLayer = 1
	c := New(q, laws, WithConfig(cfg))

	_, err := c.StartDiscovery(ctx, session, []types.LawID{"L0"})
	require.NoError(t, err)

	entries, err := q.List(ctx, types.Filter{SessionID: session})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	pending, deferred := entries[0], entries[1]
	require.Equal(t, types.StatusDeferred, deferred.Status)

	// Release only touches deferred entries.
	n, err := c.ReleaseDeferred(ctx, []string{pending.ID, deferred.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.SkipEntries(ctx, []string{pending.ID, deferred.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = c.SkipEntries(ctx, nil)
	assert.True(t, types.IsValidation(err))
}

func TestContinueFromReleasedDeferredEntry(t *testing.T) {
	ctx := context.Background()
	laws := testutil.NewLaws(
		types.LawRecord{Name: "L0", Amending: []types.LawID{"L1"}},
		types.LawRecord{Name: "L1", Amending: []types.LawID{"L2"}},
		types.LawRecord{Name: "L2", Amending: []types.LawID{"L3"}},
		types.LawRecord{Name: "L3", Amending: []types.LawID{"L4"}},
		types.LawRecord{Name: "L4", Amending: []types.LawID{"L5"}},
		types.LawRecord{Name: "L5", Amending: []types.LawID{"L6"}},
		types.LawRecord{Name: "L6"},
	)
	f := setup(t, laws)

	report, err := f.c.StartDiscovery(ctx, session, []types.LawID{"L0"})
	require.NoError(t, err)
	assert.Equal(t, types.StopDepthCeiling, report.StoppedBy)
	l4 := f.entryFor(t, "L4")
	require.Equal(t, types.StatusDeferred, l4.Status)
	require.Equal(t, 4, l4.Layer)

	n, err := f.c.ReleaseDeferred(ctx, []string{l4.ID})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	result, err := f.c.RunBatch(ctx, BatchRequest{Operator: types.OperatorReparse, EntryIDs: []string{l4.ID}, Continue: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	require.NotNil(t, result.Continuation)
	assert.Empty(t, result.ContinuationError)
	assert.Equal(t, 5, result.Continuation.StartLayer)
	assert.Equal(t, 1, result.Continuation.Inserted())

	// The next layer is written, deferred, and discovery stops there.
	l5 := f.entryFor(t, "L5")
	assert.Equal(t, 5, l5.Layer)
	assert.Equal(t, types.StatusDeferred, l5.Status)
	assert.Equal(t, []types.LawID{"L4"}, l5.SourceLaws)
	for _, e := range f.entries(t, types.Filter{SessionID: session}) {
		assert.NotEqual(t, types.LawID("L6"), e.AffectedLaw)
	}
}

func TestDeleteAndClearProcessed(t *testing.T) {
	ctx := context.Background()
	f := setup(t, testutil.ScenarioLaws())
	_, err := f.c.StartDiscovery(ctx, session, []types.LawID{"UK_uksi_2025_1"})
	require.NoError(t, err)
	_, err = f.c.StartDiscovery(ctx, "other", []types.LawID{"UK_uksi_2025_1"})
	require.NoError(t, err)

	e100 := f.entryFor(t, "UK_uksi_2025_100")
	_, err = f.c.RunBatch(ctx, BatchRequest{Operator: types.OperatorReparse, SessionID: session, AllPending: true})
	require.NoError(t, err)

	n, err := f.c.ClearProcessed(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deleted, err := f.c.DeleteEntry(ctx, e100.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	other := f.entries(t, types.Filter{SessionID: "other"})
	require.Len(t, other, 2)
	deleted, err = f.c.DeleteEntry(ctx, other[0].ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestListValidation(t *testing.T) {
	f := setup(t, testutil.NewLaws())
	_, err := f.c.List(context.Background(), types.Filter{Status: "done"})
	assert.ErrorIs(t, err, types.ErrInvalidStatus)
	_, err = f.c.List(context.Background(), types.Filter{UpdateType: "rewrite"})
	assert.ErrorIs(t, err, types.ErrInvalidUpdateType)
}

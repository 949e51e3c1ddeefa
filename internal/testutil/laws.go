// Package testutil provides in-memory collaborators and store helpers for
// cascade tests.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    laws := testutil.NewLaws()
//	    laws.Put(types.LawRecord{Name: "UK_uksi_2025_1", Amending: []types.LawID{"UK_uksi_2025_100"}})
//	    store := testutil.NewStore(t)
//	}
package testutil

import (
	"context"
	"sync"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Compile-time interface check.
var _ types.LawStore = (*Laws)(nil)

// Laws is a concurrency-safe in-memory law store. Errors can be injected per
// law for GetLaw and AppendEnacting.
type Laws struct {
	mu        sync.Mutex
	records   map[types.LawID]*types.LawRecord
	getErrs   map[types.LawID]error
	appendErr map[types.LawID]error
	getCalls  map[types.LawID]int
}

// NewLaws returns an empty store.
func NewLaws(records ...types.LawRecord) *Laws {
	l := &Laws{
		records:   make(map[types.LawID]*types.LawRecord),
		getErrs:   make(map[types.LawID]error),
		appendErr: make(map[types.LawID]error),
		getCalls:  make(map[types.LawID]int),
	}
	for _, r := range records {
		l.Put(r)
	}
	return l
}

// Put stores or replaces a law.
func (l *Laws) Put(r types.LawRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := r
	cp.Enacting = append([]types.LawID(nil), r.Enacting...)
	l.records[r.Name] = &cp
}

// Remove deletes a law.
func (l *Laws) Remove(id types.LawID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, id)
}

// FailGet makes GetLaw return err for id; nil clears it.
func (l *Laws) FailGet(id types.LawID, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.getErrs, id)
		return
	}
	l.getErrs[id] = err
}

// FailAppend makes AppendEnacting return err for id; nil clears it.
func (l *Laws) FailAppend(id types.LawID, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.appendErr, id)
		return
	}
	l.appendErr[id] = err
}

// GetCalls returns how often GetLaw was called for id.
func (l *Laws) GetCalls(id types.LawID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getCalls[id]
}

// Enacting returns a copy of the stored enacting array.
func (l *Laws) Enacting(id types.LawID) []types.LawID {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[id]
	if !ok {
		return nil
	}
	return append([]types.LawID(nil), r.Enacting...)
}

// GetLaw implements types.LawReader.
func (l *Laws) GetLaw(ctx context.Context, id types.LawID) (*types.LawRelations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.getCalls[id]++
	if err := l.getErrs[id]; err != nil {
		return nil, err
	}
	r, ok := l.records[id]
	if !ok {
		return &types.LawRelations{Name: id}, nil
	}
	rel := *r.Relations()
	rel.Enacting = append([]types.LawID(nil), r.Enacting...)
	return &rel, nil
}

// Exists implements types.LawReader.
func (l *Laws) Exists(ctx context.Context, id types.LawID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[id]
	return ok, nil
}

// AppendEnacting implements types.LawStore.
func (l *Laws) AppendEnacting(ctx context.Context, id types.LawID, ids []types.LawID) ([]types.LawID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.appendErr[id]; err != nil {
		return nil, err
	}
	r, ok := l.records[id]
	if !ok {
		return nil, types.ErrLawNotFound
	}
	r.Enacting, _ = types.UnionLawIDs(r.Enacting, ids)
	return append([]types.LawID(nil), r.Enacting...), nil
}

package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

// Compile-time interface checks.
var (
	_ types.Reparser = (*Parser)(nil)
	_ types.Importer = (*Parser)(nil)
)

// Parser is a scripted reparse/import collaborator. Imports add the scripted
// record to the backing Laws so later reads see the law.
type Parser struct {
	mu         sync.Mutex
	laws       *Laws
	reparseErr map[types.LawID]error
	importErr  map[types.LawID]error
	imports    map[types.LawID]types.LawRecord
	reparsed   map[types.LawID]int
	imported   map[types.LawID]int

	// Started, when set, is sent the law of every call as it begins.
	Started chan types.LawID

	// Block, when set, is received from before every call returns.
	Block chan struct{}
}

// NewParser returns a Parser that imports into laws.
func NewParser(laws *Laws) *Parser {
	return &Parser{
		laws:       laws,
		reparseErr: make(map[types.LawID]error),
		importErr:  make(map[types.LawID]error),
		imports:    make(map[types.LawID]types.LawRecord),
		reparsed:   make(map[types.LawID]int),
		imported:   make(map[types.LawID]int),
	}
}

// FailReparse makes ReparseLaw fail for id.
func (p *Parser) FailReparse(id types.LawID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reparseErr[id] = err
}

// FailImport makes ImportLaw fail for id.
func (p *Parser) FailImport(id types.LawID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.importErr[id] = err
}

// OnImport sets the record ImportLaw persists for its name.
func (p *Parser) OnImport(r types.LawRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imports[r.Name] = r
}

// Reparsed returns how often ReparseLaw succeeded for id.
func (p *Parser) Reparsed(id types.LawID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reparsed[id]
}

// Imported returns how often ImportLaw succeeded for id.
func (p *Parser) Imported(id types.LawID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.imported[id]
}

func (p *Parser) wait(ctx context.Context, id types.LawID) error {
	if p.Started != nil {
		p.Started <- id
	}
	if p.Block == nil {
		return nil
	}
	select {
	case <-p.Block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReparseLaw implements types.Reparser.
func (p *Parser) ReparseLaw(ctx context.Context, id types.LawID) (*types.ReparseResult, error) {
	if err := p.wait(ctx, id); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.reparseErr[id]; err != nil {
		return nil, err
	}
	p.reparsed[id]++
	return &types.ReparseResult{InsertedAnnotationRows: 2, InsertedAnnotationCount: 5, DurationMs: 12}, nil
}

// ImportLaw implements types.Importer.
func (p *Parser) ImportLaw(ctx context.Context, id types.LawID) (string, error) {
	if err := p.wait(ctx, id); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.importErr[id]; err != nil {
		return "", err
	}
	rec, ok := p.imports[id]
	if !ok {
		rec = types.LawRecord{Name: id}
	}
	if p.laws != nil {
		p.laws.Put(rec)
	}
	p.imported[id]++
	return fmt.Sprintf("rec-%s", id), nil
}

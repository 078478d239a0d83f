package agentmap

import (
	"fmt"

	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/store"
)

// QueryBuilder answers graph questions over the resolved project persisted
// by Engine.Resolve. Symbol IDs are the file:line:name form.
type QueryBuilder struct {
	store *store.Store
}

// NewQueryBuilder queries an already populated store.
func NewQueryBuilder(s *Store) *QueryBuilder {
	return &QueryBuilder{store: s}
}

// Symbol returns the symbol with id, or nil when it is unknown.
func (q *QueryBuilder) Symbol(id string) (*StoredSymbol, error) {
	s, err := q.store.Symbol(id)
	if err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}
	return s, nil
}

// SymbolsByName returns every symbol declared with the short name.
func (q *QueryBuilder) SymbolsByName(name string) ([]*StoredSymbol, error) {
	syms, err := q.store.SymbolsByName(name)
	if err != nil {
		return nil, fmt.Errorf("symbols by name: %w", err)
	}
	return syms, nil
}

// SymbolsInFile returns the symbols declared in path, by line.
func (q *QueryBuilder) SymbolsInFile(path string) ([]*StoredSymbol, error) {
	syms, err := q.store.SymbolsByFile(path)
	if err != nil {
		return nil, fmt.Errorf("symbols in file: %w", err)
	}
	return syms, nil
}

// SymbolAt returns the narrowest symbol in path whose lines contain line,
// or nil.
func (q *QueryBuilder) SymbolAt(path string, line int) (*StoredSymbol, error) {
	syms, err := q.SymbolsInFile(path)
	if err != nil {
		return nil, err
	}
	var best *StoredSymbol
	for _, s := range syms {
		if line < s.StartLine || line > s.EndLine {
			continue
		}
		if best == nil || s.EndLine-s.StartLine < best.EndLine-best.StartLine {
			best = s
		}
	}
	return best, nil
}

// Callers returns call and instantiation edges arriving at id.
func (q *QueryBuilder) Callers(id string) ([]*Edge, error) {
	edges, err := q.store.EdgesTo(id, model.RelCalls, model.RelInstantiates)
	if err != nil {
		return nil, fmt.Errorf("callers: %w", err)
	}
	return edges, nil
}

// Callees returns call and instantiation edges leaving id. Targets that did
// not resolve keep their bare, flagged or external form.
func (q *QueryBuilder) Callees(id string) ([]*Edge, error) {
	edges, err := q.store.EdgesFrom(id, model.RelCalls, model.RelInstantiates)
	if err != nil {
		return nil, fmt.Errorf("callees: %w", err)
	}
	return edges, nil
}

// References returns every edge arriving at id, of any kind.
func (q *QueryBuilder) References(id string) ([]*Edge, error) {
	edges, err := q.store.EdgesTo(id)
	if err != nil {
		return nil, fmt.Errorf("references: %w", err)
	}
	return edges, nil
}

// Implementations returns the symbols that implement or extend id.
func (q *QueryBuilder) Implementations(id string) ([]*StoredSymbol, error) {
	edges, err := q.store.EdgesTo(id, model.RelImplements, model.RelInherits)
	if err != nil {
		return nil, fmt.Errorf("implementations: %w", err)
	}
	seen := make(map[string]bool)
	var out []*StoredSymbol
	for _, e := range edges {
		if seen[e.From] {
			continue
		}
		seen[e.From] = true
		s, err := q.store.Symbol(e.From)
		if err != nil {
			return nil, fmt.Errorf("implementations: %w", err)
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// Dependencies returns the files path's resolved edges point into.
func (q *QueryBuilder) Dependencies(path string) ([]string, error) {
	paths, err := q.store.FileDependencies(path)
	if err != nil {
		return nil, fmt.Errorf("dependencies: %w", err)
	}
	return paths, nil
}

// Dependents returns the files whose resolved edges point into path.
func (q *QueryBuilder) Dependents(path string) ([]string, error) {
	paths, err := q.store.FileDependents(path)
	if err != nil {
		return nil, fmt.Errorf("dependents: %w", err)
	}
	return paths, nil
}

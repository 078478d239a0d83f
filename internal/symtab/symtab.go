// Package symtab holds the project-wide symbol table built by the first
// linking pass. Every index keeps its ID lists sorted so lookups are
// deterministic regardless of insertion order.
package symtab

import (
	"sort"
	"strings"
	"sync"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
)

// FileInfo describes a file whose symbols are in the table.
type FileInfo struct {
	Path     string
	Language lang.Language
	Module   string
}

// ReExport is a name a module forwards from another module.
type ReExport struct {
	File   string // file declaring the re-export
	Source string // module the name comes from, as written
	Name   string // "*" for wildcard re-exports
	Alias  string
}

// Local returns the name the re-export binds in its module.
func (r ReExport) Local() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}

// Table indexes symbols by ID, fully-qualified name, short name, file and
// module. Writers take the table lock; readers share it.
type Table struct {
	mu sync.RWMutex

	symbols   map[model.SymbolID]*model.Symbol
	byFQN     map[string]model.SymbolID
	byName    map[string][]model.SymbolID
	byFile    map[string][]model.SymbolID
	byModule  map[string][]model.SymbolID
	byFolded  map[string][]model.SymbolID
	files     map[string]FileInfo
	reExports map[string][]ReExport
	modules   []string
}

// New returns an empty table.
func New() *Table {
	return &Table{
		symbols:   make(map[model.SymbolID]*model.Symbol),
		byFQN:     make(map[string]model.SymbolID),
		byName:    make(map[string][]model.SymbolID),
		byFile:    make(map[string][]model.SymbolID),
		byModule:  make(map[string][]model.SymbolID),
		byFolded:  make(map[string][]model.SymbolID),
		files:     make(map[string]FileInfo),
		reExports: make(map[string][]ReExport),
	}
}

// Fold normalises a name for loose matching: lower case, no underscores.
func Fold(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}

// insertSorted adds id to ids keeping ascending order; duplicates are
// ignored.
func insertSorted(ids []model.SymbolID, id model.SymbolID) []model.SymbolID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeID(ids []model.SymbolID, id model.SymbolID) []model.SymbolID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return append(ids[:i], ids[i+1:]...)
	}
	return ids
}

// Insert adds sym. A symbol whose ID is already present replaces the
// earlier record. When two symbols share an FQN the smaller ID owns it.
func (t *Table) Insert(sym model.Symbol) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insert(sym)
}

func (t *Table) insert(sym model.Symbol) {
	if prev, ok := t.symbols[sym.ID]; ok {
		t.unindex(prev)
	}
	s := sym
	t.symbols[s.ID] = &s

	fqn := s.FQN()
	if cur, ok := t.byFQN[fqn]; !ok || s.ID < cur {
		t.byFQN[fqn] = s.ID
	}
	t.byName[s.Name] = insertSorted(t.byName[s.Name], s.ID)
	t.byFile[s.Location.File] = insertSorted(t.byFile[s.Location.File], s.ID)
	t.byModule[s.Module] = insertSorted(t.byModule[s.Module], s.ID)
	folded := Fold(s.Name)
	t.byFolded[folded] = insertSorted(t.byFolded[folded], s.ID)
	t.addModule(s.Module)
}

func (t *Table) addModule(m string) {
	i := sort.SearchStrings(t.modules, m)
	if i < len(t.modules) && t.modules[i] == m {
		return
	}
	t.modules = append(t.modules, "")
	copy(t.modules[i+1:], t.modules[i:])
	t.modules[i] = m
}

func (t *Table) unindex(s *model.Symbol) {
	delete(t.symbols, s.ID)
	fqn := s.FQN()
	if t.byFQN[fqn] == s.ID {
		delete(t.byFQN, fqn)
		// Hand the FQN to the next smallest claimant, if any.
		for _, id := range t.byModule[s.Module] {
			if other := t.symbols[id]; other != nil && other.FQN() == fqn {
				t.byFQN[fqn] = id
				break
			}
		}
	}
	prune := func(m map[string][]model.SymbolID, key string) {
		if ids := removeID(m[key], s.ID); len(ids) > 0 {
			m[key] = ids
		} else {
			delete(m, key)
		}
	}
	prune(t.byName, s.Name)
	prune(t.byFile, s.Location.File)
	prune(t.byModule, s.Module)
	prune(t.byFolded, Fold(s.Name))
	if _, ok := t.byModule[s.Module]; !ok {
		if i := sort.SearchStrings(t.modules, s.Module); i < len(t.modules) && t.modules[i] == s.Module {
			t.modules = append(t.modules[:i], t.modules[i+1:]...)
		}
	}
}

// Load registers every symbol, file and re-export of analyses.
func (t *Table) Load(analyses ...*model.CodeAnalysis) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range analyses {
		if a == nil {
			continue
		}
		module := a.Metadata.Properties["module"]
		t.files[a.Path] = FileInfo{Path: a.Path, Language: a.Language, Module: module}
		for _, s := range a.Symbols {
			t.insert(s)
		}
		t.reExports[module] = append(t.reExports[module], reExportsOf(a)...)
	}
}

func reExportsOf(a *model.CodeAnalysis) []ReExport {
	var out []ReExport
	for _, r := range a.Relationships {
		if r.Kind != model.RelReExports {
			continue
		}
		src := r.Properties[model.PropQualifier]
		out = append(out, ReExport{
			File:   a.Path,
			Source: src,
			Name:   strings.TrimPrefix(string(r.To), src+"::"),
			Alias:  r.Properties[model.PropDisplayName],
		})
	}
	return out
}

// RemoveFile drops every symbol and re-export contributed by path.
func (t *Table) RemoveFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range append([]model.SymbolID(nil), t.byFile[path]...) {
		if s := t.symbols[id]; s != nil {
			t.unindex(s)
		}
	}
	if info, ok := t.files[path]; ok {
		kept := t.reExports[info.Module][:0]
		for _, r := range t.reExports[info.Module] {
			if r.File != path {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(t.reExports, info.Module)
		} else {
			t.reExports[info.Module] = kept
		}
		delete(t.files, path)
	}
}

// Get returns the symbol with the given ID. The returned record is shared
// and must not be modified.
func (t *Table) Get(id model.SymbolID) (*model.Symbol, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.symbols[id]
	return s, ok
}

// ByFQN returns the ID owning a fully-qualified name.
func (t *Table) ByFQN(fqn string) (model.SymbolID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byFQN[fqn]
	return id, ok
}

func (t *Table) list(m map[string][]model.SymbolID, key string) []model.SymbolID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.SymbolID(nil), m[key]...)
}

// ByName returns the IDs of every symbol with the short name, sorted.
func (t *Table) ByName(name string) []model.SymbolID { return t.list(t.byName, name) }

// ByFile returns the IDs of symbols declared in path, sorted.
func (t *Table) ByFile(path string) []model.SymbolID { return t.list(t.byFile, path) }

// ByModule returns the IDs of symbols declared in module, sorted.
func (t *Table) ByModule(module string) []model.SymbolID { return t.list(t.byModule, module) }

// ByFolded returns the IDs of symbols whose folded name is folded.
func (t *Table) ByFolded(folded string) []model.SymbolID { return t.list(t.byFolded, folded) }

// Modules returns every module with at least one symbol, sorted.
func (t *Table) Modules() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.modules...)
}

// ReExports returns the re-exports declared by module.
func (t *Table) ReExports(module string) []ReExport {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ReExport(nil), t.reExports[module]...)
}

// File returns what the table knows about path.
func (t *Table) File(path string) (FileInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.files[path]
	return f, ok
}

// Files returns the paths of all loaded files, sorted.
func (t *Table) Files() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.files))
	for p := range t.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.symbols)
}

// Symbols returns every symbol ordered by ID.
func (t *Table) Symbols() []*model.Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*model.Symbol, 0, len(t.symbols))
	for _, s := range t.symbols {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

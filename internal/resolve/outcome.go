// Package resolve maps bare relationship targets to symbols in the project
// table through an ordered chain of strategies.
package resolve

import (
	"path"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/symtab"
)

// Kind classifies an Outcome.
type Kind int

const (
	Unresolved Kind = iota
	Resolved
	Ambiguous
	External
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return model.ResolutionResolved
	case Ambiguous:
		return model.ResolutionAmbiguous
	case External:
		return model.ResolutionExternal
	}
	return model.ResolutionUnresolved
}

// Outcome is the result of resolving one name.
type Outcome struct {
	Kind       Kind
	ID         model.SymbolID   // Resolved
	Candidates []model.SymbolID // Ambiguous, sorted
	Module     string           // External
	Name       string           // External
	Strategy   string
}

// Target returns the ID a relationship should point to for this outcome:
// the symbol, the first candidate or the namespaced external reference.
func (o Outcome) Target() model.SymbolID {
	switch o.Kind {
	case Resolved:
		return o.ID
	case Ambiguous:
		if len(o.Candidates) > 0 {
			return o.Candidates[0]
		}
	case External:
		return model.ExternalRef(o.Module, o.Name)
	}
	return ""
}

func resolved(id model.SymbolID) Outcome { return Outcome{Kind: Resolved, ID: id} }

func external(module, name string) Outcome {
	return Outcome{Kind: External, Module: module, Name: name}
}

// fromIDs turns a candidate list into an outcome.
func fromIDs(ids []model.SymbolID) Outcome {
	ids = dedupe(ids)
	switch len(ids) {
	case 0:
		return Outcome{}
	case 1:
		return resolved(ids[0])
	}
	return Outcome{Kind: Ambiguous, Candidates: ids}
}

func dedupe(ids []model.SymbolID) []model.SymbolID {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[model.SymbolID]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

// Request is one name to resolve, with the edge it came from.
type Request struct {
	Name      string
	Kind      model.RelationshipKind
	From      model.SymbolID
	Qualifier string
}

// Context is the per-file view the strategies resolve against.
type Context struct {
	Table    *symtab.Table
	File     string
	Language lang.Language
	Module   string

	// Imports maps each local name an import binds to what it refers to.
	Imports   map[string]Binding
	Sources   []string
	Wildcards []string
}

// NewContext builds the resolution context of one analysed file.
func NewContext(t *symtab.Table, a *model.CodeAnalysis) *Context {
	ctx := &Context{
		Table:    t,
		File:     a.Path,
		Language: a.Language,
		Module:   a.Metadata.Properties["module"],
		Imports:  make(map[string]Binding),
	}
	for _, imp := range a.Imports {
		ctx.Sources = append(ctx.Sources, imp.Source)
		for _, n := range imp.Names {
			ctx.Imports[n.Local()] = Binding{Source: imp.Source, Name: n.Name}
		}
		if imp.ModuleAlias != "" {
			ctx.Imports[imp.ModuleAlias] = Binding{Source: imp.Source}
		}
		if imp.Wildcard {
			ctx.Wildcards = append(ctx.Wildcards, imp.Source)
		}
		if len(imp.Names) == 0 && imp.ModuleAlias == "" && !imp.Wildcard {
			ctx.Imports[imp.Source] = Binding{Source: imp.Source}
		}
	}
	return ctx
}

// Binding is what an imported local name refers to. Name is empty when the
// local name stands for the whole module.
type Binding struct {
	Source string
	Name   string
}

// lookupImport finds the import binding for the leading part of name and
// returns the remainder of name after it.
func (c *Context) lookupImport(name string) (b Binding, rest string, ok bool) {
	if b, ok := c.Imports[name]; ok {
		return b, "", true
	}
	// Longest prefix first, so "os.path.join" prefers an "os.path" binding
	// over "os".
	for i := len(name) - 1; i > 0; i-- {
		var next int
		switch {
		case name[i] == '.':
			next = i + 1
		case name[i] == ':' && name[i-1] == ':':
			i--
			next = i + 2
		default:
			continue
		}
		if b, ok := c.Imports[name[:i]]; ok {
			return b, name[next:], true
		}
	}
	return Binding{}, "", false
}

// dir returns the directory of the context's file.
func (c *Context) dir() string {
	return path.Dir(c.File)
}

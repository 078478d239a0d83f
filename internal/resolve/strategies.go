package resolve

import (
	"path"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/symtab"
)

// Strategy priorities. Lower runs first.
const (
	PriorityLocalScope     = 10
	PriorityRelativeImport = 15
	PriorityDefaultExport  = 18
	PriorityImportAlias    = 20
	PriorityGoPackage      = 22
	PriorityJavaFqn        = 24
	PriorityReExport       = 25
	PriorityQualifiedPath  = 30
	PrioritySiblingFile    = 40
	PriorityFuzzy          = 90
)

// Strategy resolves one name against a file context. Strategies hold no
// per-call state and are safe for concurrent use.
type Strategy interface {
	Name() string
	Priority() int
	Resolve(c *Context, r Request) Outcome
}

// maxReExportDepth bounds re-export chains; cycles end here.
const maxReExportDepth = 8

// selfReceivers name the enclosing instance or type.
var selfReceivers = map[string]bool{"self": true, "this": true, "cls": true, "Self": true}

// enclosingType returns the qualified name of the type that declares from,
// or "" when from is top level.
func enclosingType(t *symtab.Table, from model.SymbolID) string {
	s, ok := t.Get(from)
	if !ok {
		return ""
	}
	qn := s.QualifiedName
	if s.Kind.IsType() {
		return qn
	}
	if i := strings.LastIndex(qn, "::"); i >= 0 {
		return qn[:i]
	}
	return ""
}

// LocalScope matches names declared in the referencing file.
type LocalScope struct{}

func (LocalScope) Name() string  { return "local_scope" }
func (LocalScope) Priority() int { return PriorityLocalScope }

func (LocalScope) Resolve(c *Context, r Request) Outcome {
	name, qualifier := r.Name, r.Qualifier
	if rest, ok := strings.CutPrefix(name, "Self::"); ok {
		name, qualifier = rest, "Self"
	}
	if !simple(name) {
		return Outcome{}
	}
	var all []model.SymbolID
	for _, id := range c.Table.ByFile(c.File) {
		if id.Name() == name {
			all = append(all, id)
		}
	}
	if len(all) == 0 {
		return Outcome{}
	}

	owner := enclosingType(c.Table, r.From)
	var top, members, owned []model.SymbolID
	for _, id := range all {
		s, ok := c.Table.Get(id)
		if !ok {
			continue
		}
		switch {
		case s.QualifiedName == s.Name:
			top = append(top, id)
		case owner != "" && s.QualifiedName == owner+"::"+name:
			owned = append(owned, id)
			members = append(members, id)
		default:
			members = append(members, id)
		}
	}

	switch {
	case selfReceivers[qualifier]:
		if len(owned) > 0 {
			return fromIDs(owned)
		}
		return fromIDs(members)
	case qualifier != "":
		// Some other receiver: only members can answer.
		if len(owned) > 0 {
			return fromIDs(owned)
		}
		return fromIDs(members)
	case len(top) > 0:
		return fromIDs(top)
	case len(owned) > 0:
		return fromIDs(owned)
	}
	return fromIDs(all)
}

// RelativeImport follows imports written relative to the referencing file:
// Python dots, "./" and "../" module specifiers, bare Dart URIs.
type RelativeImport struct{}

func (RelativeImport) Name() string  { return "relative_import" }
func (RelativeImport) Priority() int { return PriorityRelativeImport }

func (RelativeImport) Resolve(c *Context, r Request) Outcome {
	b, rest, ok := c.lookupImport(r.Name)
	if !ok || b.Name == "default" || !isRelative(c.Language, b.Source) {
		return Outcome{}
	}
	mod := relativeModule(c.Language, c.File, b.Source)
	if b.Name == "" {
		return fromIDs(findIn(c.Table, mod, rest))
	}
	if ids := findIn(c.Table, mod, joinName(b.Name, rest)); len(ids) > 0 {
		return fromIDs(ids)
	}
	// "from . import user" binds a submodule.
	return fromIDs(findIn(c.Table, joinModule(c.Language, mod, b.Name), rest))
}

// joinName appends a member path to a qualified name.
func joinName(name, rest string) string {
	switch {
	case rest == "":
		return name
	case name == "":
		return qualify(rest)
	}
	return name + "::" + qualify(rest)
}

// DefaultExport resolves TypeScript and JavaScript default imports to the
// symbol the target module marks as its default export.
type DefaultExport struct{}

func (DefaultExport) Name() string  { return "default_export" }
func (DefaultExport) Priority() int { return PriorityDefaultExport }

func (DefaultExport) Resolve(c *Context, r Request) Outcome {
	if c.Language != lang.TypeScript && c.Language != lang.JavaScript {
		return Outcome{}
	}
	b, rest, ok := c.lookupImport(r.Name)
	if !ok || b.Name != "default" {
		return Outcome{}
	}
	return fromIDs(defaultExports(c, b.Source, rest))
}

// defaultExports returns the default export of each module source names,
// or the member rest of it when rest is not empty.
func defaultExports(c *Context, source, rest string) []model.SymbolID {
	var ids []model.SymbolID
	for _, mod := range modulesFor(c.Table, c.Language, c.File, c.Module, source) {
		for _, id := range c.Table.ByModule(mod) {
			s, ok := c.Table.Get(id)
			if !ok || s.Properties["export"] != "default" {
				continue
			}
			if rest == "" {
				ids = append(ids, id)
			} else {
				ids = append(ids, findIn(c.Table, mod, s.QualifiedName+"::"+qualify(rest))...)
			}
		}
	}
	return ids
}

// ImportAlias resolves names bound by the file's imports. An import whose
// source is not part of the project yields External.
type ImportAlias struct{}

func (ImportAlias) Name() string  { return "import_alias" }
func (ImportAlias) Priority() int { return PriorityImportAlias }

func (ImportAlias) Resolve(c *Context, r Request) Outcome {
	b, rest, ok := c.lookupImport(r.Name)
	if !ok {
		if !simple(r.Name) || r.Qualifier != "" {
			return Outcome{}
		}
		var ids []model.SymbolID
		for _, w := range c.Wildcards {
			for _, mod := range modulesFor(c.Table, c.Language, c.File, c.Module, w) {
				ids = append(ids, findIn(c.Table, mod, r.Name)...)
			}
		}
		return fromIDs(ids)
	}
	if isRelative(c.Language, b.Source) || b.Name == "default" {
		return Outcome{}
	}

	mods := modulesFor(c.Table, c.Language, c.File, c.Module, b.Source)
	var ids []model.SymbolID
	if b.Name == "" {
		for _, mod := range mods {
			ids = append(ids, findIn(c.Table, mod, rest)...)
		}
	} else {
		for _, mod := range mods {
			ids = append(ids, findIn(c.Table, mod, joinName(b.Name, rest))...)
		}
		if len(ids) == 0 && rest != "" {
			sub := b.Source + lang.ModuleSeparator(c.Language) + b.Name
			for _, mod := range modulesFor(c.Table, c.Language, c.File, c.Module, sub) {
				ids = append(ids, findIn(c.Table, mod, rest)...)
			}
		}
	}
	if out := fromIDs(ids); out.Kind != Unresolved {
		return out
	}
	if len(mods) > 0 {
		// The module is ours but lacks the name; a re-export may still
		// provide it.
		return Outcome{}
	}
	return external(b.Source, joinName(b.Name, rest))
}

// GoPackage resolves "pkg.Name" where pkg is the last element of a project
// package directory.
type GoPackage struct{}

func (GoPackage) Name() string  { return "go_package" }
func (GoPackage) Priority() int { return PriorityGoPackage }

func (GoPackage) Resolve(c *Context, r Request) Outcome {
	if c.Language != lang.Go {
		return Outcome{}
	}
	pkg, rest, ok := strings.Cut(r.Name, ".")
	if !ok || pkg == "" || rest == "" {
		return Outcome{}
	}
	var ids []model.SymbolID
	for _, mod := range c.Table.Modules() {
		if path.Base(mod) == pkg {
			ids = append(ids, findIn(c.Table, mod, rest)...)
		}
	}
	return fromIDs(ids)
}

// JavaFqn resolves fully-qualified class names and classes of the file's
// own package.
type JavaFqn struct{}

func (JavaFqn) Name() string  { return "java_fqn" }
func (JavaFqn) Priority() int { return PriorityJavaFqn }

func (JavaFqn) Resolve(c *Context, r Request) Outcome {
	if c.Language != lang.Java {
		return Outcome{}
	}
	if simple(r.Name) {
		if r.Qualifier != "" {
			return Outcome{}
		}
		return fromIDs(findIn(c.Table, c.Module, r.Name))
	}
	// com.acme.Outer.Inner: try the longest package first.
	for i := strings.LastIndexByte(r.Name, '.'); i > 0; i = strings.LastIndexByte(r.Name[:i], '.') {
		if ids := findIn(c.Table, r.Name[:i], r.Name[i+1:]); len(ids) > 0 {
			return fromIDs(ids)
		}
	}
	return Outcome{}
}

// ReExport follows names forwarded by "export ... from" and "pub use"
// through at most maxReExportDepth modules.
type ReExport struct{}

func (ReExport) Name() string  { return "re_export" }
func (ReExport) Priority() int { return PriorityReExport }

func (ReExport) Resolve(c *Context, r Request) Outcome {
	b, rest, ok := c.lookupImport(r.Name)
	var ids []model.SymbolID
	switch {
	case ok && b.Name != "" && b.Name != "default":
		for _, mod := range modulesFor(c.Table, c.Language, c.File, c.Module, b.Source) {
			ids = append(ids, follow(c.Table, mod, b.Name, rest, 0)...)
		}
	case ok && b.Name == "" && rest != "":
		head, tail, _ := strings.Cut(qualify(rest), "::")
		for _, mod := range modulesFor(c.Table, c.Language, c.File, c.Module, b.Source) {
			ids = append(ids, follow(c.Table, mod, head, tail, 0)...)
		}
	case !ok && simple(r.Name) && r.Qualifier == "":
		for _, w := range c.Wildcards {
			for _, mod := range modulesFor(c.Table, c.Language, c.File, c.Module, w) {
				ids = append(ids, follow(c.Table, mod, r.Name, "", 0)...)
			}
		}
	}
	return fromIDs(ids)
}

// follow looks name (plus an optional member path) up in module, chasing
// the module's re-exports when it does not declare the name itself.
func follow(t *symtab.Table, module, name, rest string, depth int) []model.SymbolID {
	if ids := findIn(t, module, joinName(name, rest)); len(ids) > 0 {
		return ids
	}
	if depth >= maxReExportDepth {
		return nil
	}
	var out []model.SymbolID
	for _, re := range t.ReExports(module) {
		inner := re.Name
		switch {
		case re.Name == "*":
			inner = name
		case re.Local() != name:
			continue
		}
		info, ok := t.File(re.File)
		if !ok {
			continue
		}
		for _, next := range modulesFor(t, info.Language, re.File, info.Module, re.Source) {
			if next == module {
				continue
			}
			out = append(out, follow(t, next, inner, rest, depth+1)...)
		}
	}
	return out
}

// QualifiedPath resolves names written with "::" or "." against the
// fully-qualified name index, falling back to a suffix match over symbols
// sharing the last segment.
type QualifiedPath struct{}

func (QualifiedPath) Name() string  { return "qualified_path" }
func (QualifiedPath) Priority() int { return PriorityQualifiedPath }

func (QualifiedPath) Resolve(c *Context, r Request) Outcome {
	if simple(r.Name) {
		return Outcome{}
	}
	name := stripPathPrefixes(strings.TrimPrefix(r.Name, "Self::"))
	for _, fqn := range []string{name, qualify(name), joinName(c.Module, name)} {
		if fqn == "" {
			continue
		}
		if id, ok := c.Table.ByFQN(fqn); ok {
			return resolved(id)
		}
	}
	want := split(name)
	if len(want) < 2 {
		return Outcome{}
	}
	var ids []model.SymbolID
	for _, id := range c.Table.ByName(want[len(want)-1]) {
		s, ok := c.Table.Get(id)
		if ok && hasSuffix(split(s.FQN()), want) {
			ids = append(ids, id)
		}
	}
	return fromIDs(ids)
}

// SiblingFile matches simple names declared by other files in the same
// directory.
type SiblingFile struct{}

func (SiblingFile) Name() string  { return "sibling_file" }
func (SiblingFile) Priority() int { return PrioritySiblingFile }

func (SiblingFile) Resolve(c *Context, r Request) Outcome {
	if !simple(r.Name) {
		return Outcome{}
	}
	dir := c.dir()
	var ids []model.SymbolID
	for _, id := range c.Table.ByName(r.Name) {
		if f := id.File(); f != c.File && path.Dir(f) == dir {
			ids = append(ids, id)
		}
	}
	return fromIDs(ids)
}

// Fuzzy matches simple names against symbols whose name is identical or
// identical once case and underscores are folded, scoring each candidate by
// Levenshtein similarity. Only candidates at or above Threshold count.
type Fuzzy struct {
	Threshold float32
}

func (Fuzzy) Name() string  { return "fuzzy" }
func (Fuzzy) Priority() int { return PriorityFuzzy }

func (f Fuzzy) Resolve(c *Context, r Request) Outcome {
	if !simple(r.Name) {
		return Outcome{}
	}
	pool := append(c.Table.ByName(r.Name), c.Table.ByFolded(symtab.Fold(r.Name))...)
	var ids []model.SymbolID
	for _, id := range pool {
		score, err := edlib.StringsSimilarity(r.Name, id.Name(), edlib.Levenshtein)
		if err != nil {
			continue
		}
		if score >= f.Threshold {
			ids = append(ids, id)
		}
	}
	return fromIDs(ids)
}

package resolve

import (
	"path"
	"sort"
	"strings"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/symtab"
)

func sortIDs(ids []model.SymbolID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// simple reports whether name has no module or member qualification.
func simple(name string) bool {
	return name != "" && !strings.ContainsAny(name, ".:/")
}

// split breaks a qualified name at every "::", "." and "/".
func split(name string) []string {
	return strings.FieldsFunc(strings.ReplaceAll(name, "::", "/"), func(r rune) bool {
		return r == '/' || r == '.'
	})
}

// qualify rewrites a dotted member path in the "::" form used by qualified
// names.
func qualify(name string) string {
	return strings.ReplaceAll(name, ".", "::")
}

var rustPathPrefixes = []string{"crate::", "self::", "super::"}

func stripPathPrefixes(s string) string {
	for trimmed := true; trimmed; {
		trimmed = false
		for _, p := range rustPathPrefixes {
			if strings.HasPrefix(s, p) {
				s = s[len(p):]
				trimmed = true
			}
		}
	}
	return s
}

// segments splits a module reference written in any supported language
// ("models.user", "crate::net::tcp", "github.com/acme/app/pkg",
// "package:app/models/user.dart") into its components.
func segments(module string) []string {
	s := strings.TrimSpace(module)
	for _, p := range []string{"package:", "dart:"} {
		s = strings.TrimPrefix(s, p)
	}
	s = stripPathPrefixes(s)
	switch s {
	case "crate", "self", "super":
		return nil
	}
	if strings.Contains(s, "/") {
		if ext := path.Ext(s); ext != "" {
			if _, ok := lang.ForExtension(ext); ok {
				s = strings.TrimSuffix(s, ext)
			}
		}
	}
	return split(s)
}

func hasSuffix(s, suffix []string) bool {
	if len(suffix) == 0 || len(suffix) > len(s) {
		return false
	}
	off := len(s) - len(suffix)
	for i, seg := range suffix {
		if s[off+i] != seg {
			return false
		}
	}
	return true
}

// moduleMatches reports whether a project module and an import source name
// the same module: one's segments end with the other's.
func moduleMatches(module, source string) bool {
	a, b := segments(module), segments(source)
	return hasSuffix(a, b) || hasSuffix(b, a)
}

// matchingModules returns the project modules an import source may refer
// to, in sorted order.
func matchingModules(t *symtab.Table, source string) []string {
	var out []string
	for _, m := range t.Modules() {
		if m != "" && moduleMatches(m, source) {
			out = append(out, m)
		}
	}
	return out
}

// findIn returns the symbol declared as name inside module.
func findIn(t *symtab.Table, module, name string) []model.SymbolID {
	if name == "" {
		return nil
	}
	fqn := qualify(name)
	if module != "" {
		fqn = module + "::" + fqn
	}
	if id, ok := t.ByFQN(fqn); ok {
		return []model.SymbolID{id}
	}
	return nil
}

// findInSource looks name up in every module source may refer to.
func findInSource(t *symtab.Table, source, name string) []model.SymbolID {
	var out []model.SymbolID
	for _, m := range matchingModules(t, source) {
		out = append(out, findIn(t, m, name)...)
	}
	return out
}

// isRelative reports whether an import source is relative to the importing
// file.
func isRelative(l lang.Language, source string) bool {
	switch l {
	case lang.Python:
		return strings.HasPrefix(source, ".")
	case lang.TypeScript, lang.JavaScript:
		return source == "." || source == ".." || strings.HasPrefix(source, "./") || strings.HasPrefix(source, "../")
	case lang.Dart:
		return source != "" && !strings.Contains(source, ":")
	}
	return false
}

// relativeModule converts a relative import source written in file into
// the module path it names.
func relativeModule(l lang.Language, file, source string) string {
	dir := path.Dir(file)
	switch l {
	case lang.Python:
		dots := len(source) - len(strings.TrimLeft(source, "."))
		for i := 1; i < dots; i++ {
			dir = path.Dir(dir)
		}
		rest := strings.ReplaceAll(source[dots:], ".", "/")
		if rest == "" {
			return lang.ModulePath(l, path.Join(dir, "__init__.py"))
		}
		return lang.ModulePath(l, path.Join(dir, rest)+".py")
	case lang.TypeScript, lang.JavaScript:
		p := path.Join(dir, source)
		if ext := path.Ext(p); ext != "" {
			if _, ok := lang.ForExtension(ext); ok {
				p = strings.TrimSuffix(p, ext)
			}
		}
		return lang.ModulePath(l, p+".ts")
	case lang.Dart:
		return lang.ModulePath(l, path.Join(dir, source))
	}
	return source
}

// joinModule appends a child segment to a module path.
func joinModule(l lang.Language, module, child string) string {
	if module == "" {
		return child
	}
	return module + lang.ModuleSeparator(l) + child
}

// modulesFor returns the modules an import source written in file refers
// to. module is the importing file's own module.
func modulesFor(t *symtab.Table, l lang.Language, file, module, source string) []string {
	if isRelative(l, source) {
		return []string{relativeModule(l, file, source)}
	}
	if l == lang.Rust {
		switch source {
		case "crate":
			return []string{""}
		case "self":
			return []string{module}
		case "super":
			if i := strings.LastIndex(module, "::"); i >= 0 {
				return []string{module[:i]}
			}
			return []string{""}
		}
	}
	return matchingModules(t, source)
}

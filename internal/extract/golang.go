package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/syntax"
)

var goMajorVersion = regexp.MustCompile(`^v[0-9]+$`)

func init() {
	register(lang.Go, &rules{
		fallback: map[string]model.SymbolKind{
			"function_declaration": model.KindFunction,
			"method_declaration":   model.KindMethod,
			"type_spec":            model.KindTypeAlias,
			"type_alias":           model.KindTypeAlias,
			"const_spec":           model.KindConstant,
		},
		calls: map[string]string{
			"call_expression": "function",
		},
		instantiations: map[string]string{
			"composite_literal": "type",
		},
		accesses: map[string]access{
			"selector_expression": {object: "operand", member: "field"},
		},
		qualifiedTypes: set("qualified_type"),
		builtins: set(
			"make", "new", "append", "len", "cap", "panic", "recover", "print", "println",
			"copy", "delete", "close", "complex", "real", "imag", "min", "max", "clear",
			"string", "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16",
			"uint32", "uint64", "uintptr", "float32", "float64", "byte", "rune", "bool",
			"error", "complex64", "complex128", "any", "map", "chan", "struct", "func",
		),
		defName: func(n syntax.Node) syntax.Node {
			if n.Kind() == "const_spec" && n.NamedChildCount() > 0 {
				return n.NamedChild(0)
			}
			return n.ChildByField("name")
		},
		adjustKind: func(n syntax.Node, kind model.SymbolKind, _ string, _ bool) model.SymbolKind {
			if n.Kind() != "type_spec" {
				return kind
			}
			switch t := n.ChildByField("type"); {
			case t == nil:
			case t.Kind() == "struct_type":
				return model.KindStruct
			case t.Kind() == "interface_type":
				return model.KindInterface
			}
			return model.KindTypeAlias
		},
		properties: func(_ syntax.Node, name string, _ []byte) map[string]string {
			r, _ := utf8.DecodeRuneInString(name)
			if unicode.IsUpper(r) {
				return map[string]string{"exported": "true"}
			}
			return map[string]string{"exported": "false"}
		},
		qualify: func(n syntax.Node, name, qualified string, src []byte) (string, string) {
			if n.Kind() == "method_declaration" {
				if recv := goReceiver(n, src); recv != "" {
					return recv + "::" + name, ""
				}
			}
			return qualified, ""
		},
		heritage: goHeritage,
		docs:     commentDocs(isLineComment),
		module:   goModule,
		scopeName: func(n syntax.Node, src []byte) string {
			if p := n.Parent(); p != nil && p.Kind() == "type_spec" {
				return syntax.Text(p.ChildByField("name"), src)
			}
			return ""
		},
		imports: goImports,
		skipRef: func(n syntax.Node) bool {
			if f := syntax.Ancestor(n, "field_declaration"); f != nil && f.ChildByField("name") == nil {
				return true
			}
			if pl := syntax.Ancestor(n, "parameter_list"); pl != nil && isFieldOf(pl, "receiver") {
				return true
			}
			return false
		},
		extra: func(w *walker, n syntax.Node) {
			if n.Kind() != "method_declaration" {
				return
			}
			if id, ok := w.localTypes[goReceiver(n, w.src)]; ok {
				w.emitResolved(id, w.current(), model.RelHasMethod, n)
			}
		},
	})
}

// goReceiver returns the receiver type name of a method declaration.
func goReceiver(n syntax.Node, src []byte) string {
	recv := n.ChildByField("receiver")
	if recv == nil {
		return ""
	}
	param := syntax.FirstChildOfKind(recv, "parameter_declaration")
	if param == nil {
		return ""
	}
	return typeName(param.ChildByField("type"), src)
}

// goModule is the package directory, or the package name for files at the
// project root.
func goModule(path string, root syntax.Node, src []byte) string {
	if m := lang.ModulePath(lang.Go, path); m != "" {
		return m
	}
	if pc := syntax.FirstChildOfKind(root, "package_clause"); pc != nil {
		if id := syntax.FirstChildOfKind(pc, "package_identifier"); id != nil {
			return syntax.Text(id, src)
		}
	}
	return ""
}

func goHeritage(n syntax.Node, src []byte) []heritage {
	if n.Kind() != "type_spec" {
		return nil
	}
	t := n.ChildByField("type")
	if t == nil {
		return nil
	}
	var out []heritage
	switch t.Kind() {
	case "struct_type":
		list := syntax.FirstChildOfKind(t, "field_declaration_list")
		for _, f := range syntax.NamedChildren(list) {
			if f.Kind() != "field_declaration" || f.ChildByField("name") != nil {
				continue
			}
			if name := typeName(f.ChildByField("type"), src); name != "" {
				out = append(out, heritage{name: strings.TrimPrefix(name, "*"), kind: model.RelInherits, node: f})
			}
		}
	case "interface_type":
		for _, c := range syntax.NamedChildren(t) {
			switch c.Kind() {
			case "type_identifier", "qualified_type", "type_elem", "constraint_elem":
				if name := typeName(c, src); name != "" && !strings.ContainsAny(name, "|~") {
					out = append(out, heritage{name: name, kind: model.RelInherits, node: c})
				}
			}
		}
	}
	return out
}

// goPackageName guesses the package name an import path binds.
func goPackageName(path string) string {
	segs := strings.Split(path, "/")
	name := segs[len(segs)-1]
	if goMajorVersion.MatchString(name) && len(segs) > 1 {
		name = segs[len(segs)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, "-", "_")
}

func goImports(n syntax.Node, src []byte) ([]model.Import, bool) {
	if n.Kind() != "import_spec" {
		return nil, false
	}
	imp := model.Import{Source: unquote(syntax.Text(n.ChildByField("path"), src))}
	switch name := n.ChildByField("name"); {
	case name == nil:
		imp.ModuleAlias = goPackageName(imp.Source)
	case name.Kind() == "dot":
		imp.Wildcard = true
	default:
		imp.ModuleAlias = syntax.Text(name, src)
	}
	return []model.Import{imp}, false
}

package extract

import (
	"regexp"
	"strings"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/syntax"
)

var turbofish = regexp.MustCompile(`::<[^()]*>`)

func init() {
	register(lang.Rust, &rules{
		fallback: map[string]model.SymbolKind{
			"function_item":           model.KindFunction,
			"function_signature_item": model.KindFunction,
			"struct_item":             model.KindStruct,
			"union_item":              model.KindStruct,
			"enum_item":               model.KindEnum,
			"trait_item":              model.KindTrait,
			"mod_item":                model.KindModule,
			"const_item":              model.KindConstant,
			"static_item":             model.KindVariable,
			"type_item":               model.KindTypeAlias,
			"macro_definition":        model.KindMacro,
		},
		calls: map[string]string{
			"call_expression":  "function",
			"macro_invocation": "macro",
		},
		instantiations: map[string]string{
			"struct_expression": "name",
		},
		accesses: map[string]access{
			"field_expression": {object: "value", member: "field"},
		},
		qualifiedTypes: set("scoped_type_identifier"),
		builtins: set(
			"println", "print", "eprintln", "eprint", "format", "format_args", "vec",
			"panic", "assert", "assert_eq", "assert_ne", "debug_assert", "debug_assert_eq",
			"debug_assert_ne", "write", "writeln", "todo", "unimplemented", "unreachable",
			"matches", "dbg", "include_str", "include_bytes", "env", "concat", "stringify",
			"line", "file", "column", "cfg", "Some", "None", "Ok", "Err", "Box", "drop",
		),
		receivers: set("self", "Self", "super", "crate"),
		stdTypes: set(
			"String", "Vec", "Option", "Result", "Box", "Rc", "Arc", "RefCell", "Cell",
			"HashMap", "HashSet", "BTreeMap", "BTreeSet", "VecDeque", "Self", "Mutex",
			"RwLock", "Cow", "Path", "PathBuf", "Duration", "Instant", "Ordering", "Fn",
			"FnMut", "FnOnce", "Iterator", "IntoIterator", "Default", "Clone", "Copy",
			"Debug", "Display", "Send", "Sync", "Sized", "From", "Into", "PartialEq", "Eq",
			"PartialOrd", "Ord", "Hash", "AsRef", "ToString", "Formatter", "Pin", "Future",
			"PhantomData", "std", "core", "alloc",
		),
		calleeName: func(n syntax.Node, src []byte) string {
			switch n.Kind() {
			case "generic_function":
				return typeName(n.ChildByField("function"), src)
			case "scoped_identifier":
				return turbofish.ReplaceAllString(strings.Join(strings.Fields(syntax.Text(n, src)), ""), "")
			}
			return typeName(n, src)
		},
		adjustKind: func(n syntax.Node, kind model.SymbolKind, _ string, _ bool) model.SymbolKind {
			if kind != model.KindFunction {
				return kind
			}
			if mods := syntax.FirstChildOfKind(n, "function_modifiers"); mods != nil {
				for _, c := range syntax.Children(mods) {
					if c.Kind() == "async" {
						return model.KindAsyncFunction
					}
				}
			}
			return kind
		},
		visibility: func(n syntax.Node, _ string, src []byte, _ bool) model.Visibility {
			if v := syntax.FirstChildOfKind(n, "visibility_modifier"); v != nil && strings.HasPrefix(syntax.Text(v, src), "pub") {
				return model.Public
			}
			return model.Private
		},
		heritage: func(n syntax.Node, src []byte) []heritage {
			if n.Kind() != "trait_item" {
				return nil
			}
			if b := n.ChildByField("bounds"); b != nil {
				return heritageFrom(b, model.RelInherits, src)
			}
			return nil
		},
		docs: commentDocs(isTripleSlash, "attribute_item", "inner_attribute_item"),
		scopeName: func(n syntax.Node, src []byte) string {
			if n.Kind() == "impl_item" {
				return lastSegment(typeName(n.ChildByField("type"), src))
			}
			return ""
		},
		imports: rustImports,
		skipRef: func(n syntax.Node) bool {
			if p := n.Parent(); p != nil && p.Kind() == "impl_item" {
				return true
			}
			b := syntax.Ancestor(n, "trait_bounds")
			return b != nil && b.Parent() != nil && b.Parent().Kind() == "trait_item"
		},
		extra: func(w *walker, n syntax.Node) {
			if n.Kind() != "impl_item" {
				return
			}
			trait := n.ChildByField("trait")
			if trait == nil {
				return
			}
			from := model.FileScope(w.path)
			if id, ok := w.localTypes[lastSegment(typeName(n.ChildByField("type"), w.src))]; ok {
				from = id
			}
			w.emit(w.relationship(from, model.BareRef(typeName(trait, w.src)), model.RelImplements, trait))
		},
	})
}

func rustImports(n syntax.Node, src []byte) ([]model.Import, bool) {
	switch n.Kind() {
	case "extern_crate_declaration":
		imp := model.Import{Source: syntax.Text(n.ChildByField("name"), src)}
		if a := n.ChildByField("alias"); a != nil {
			imp.ModuleAlias = syntax.Text(a, src)
		}
		return []model.Import{imp}, false
	case "use_declaration":
		reexport := false
		if v := syntax.FirstChildOfKind(n, "visibility_modifier"); v != nil {
			reexport = strings.HasPrefix(syntax.Text(v, src), "pub")
		}
		return rustUseTree(n.ChildByField("argument"), "", src), reexport
	}
	return nil, false
}

func joinPath(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "::" + b
}

// rustUseTree flattens a use tree into one import per leaf.
func rustUseTree(n syntax.Node, prefix string, src []byte) []model.Import {
	if n == nil {
		return nil
	}
	switch n.Kind() {
	case "scoped_identifier":
		path := syntax.Text(n.ChildByField("path"), src)
		name := syntax.Text(n.ChildByField("name"), src)
		return []model.Import{{Source: joinPath(prefix, path), Names: []model.ImportedName{{Name: name}}}}
	case "identifier", "crate", "self", "super":
		name := syntax.Text(n, src)
		switch {
		case prefix == "":
			return []model.Import{{Source: name}}
		case name == "self":
			return []model.Import{{Source: prefix}}
		}
		return []model.Import{{Source: prefix, Names: []model.ImportedName{{Name: name}}}}
	case "use_as_clause":
		inner := rustUseTree(n.ChildByField("path"), prefix, src)
		alias := syntax.Text(n.ChildByField("alias"), src)
		for i := range inner {
			if len(inner[i].Names) == 1 {
				inner[i].Names[0].Alias = alias
			} else {
				inner[i].ModuleAlias = alias
			}
		}
		return inner
	case "use_wildcard":
		path := ""
		if n.NamedChildCount() > 0 {
			path = syntax.Text(n.NamedChild(0), src)
		}
		return []model.Import{{Source: joinPath(prefix, path), Wildcard: true}}
	case "scoped_use_list":
		return rustUseTree(n.ChildByField("list"), joinPath(prefix, syntax.Text(n.ChildByField("path"), src)), src)
	case "use_list":
		var out []model.Import
		for _, c := range syntax.NamedChildren(n) {
			out = append(out, rustUseTree(c, prefix, src)...)
		}
		return out
	}
	return nil
}

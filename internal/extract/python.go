package extract

import (
	"strings"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/syntax"
)

func init() {
	register(lang.Python, &rules{
		fallback: map[string]model.SymbolKind{
			"function_definition":       model.KindFunction,
			"async_function_definition": model.KindAsyncFunction,
			"class_definition":          model.KindClass,
		},
		calls: map[string]string{
			"call": "function",
		},
		accesses: map[string]access{
			"attribute": {object: "object", member: "attribute"},
		},
		builtins: set(
			"print", "len", "str", "int", "float", "bool", "list", "dict", "set", "tuple",
			"range", "enumerate", "zip", "map", "filter", "sorted", "reversed", "isinstance",
			"issubclass", "hasattr", "getattr", "setattr", "delattr", "super", "type", "id",
			"repr", "abs", "min", "max", "sum", "any", "all", "open", "iter", "next",
			"callable", "format", "round", "input", "vars", "dir", "hash", "object",
			"property", "staticmethod", "classmethod", "ord", "chr", "bytes", "bytearray",
			"frozenset", "divmod", "pow", "globals", "locals", "exec", "eval", "compile",
			"slice", "memoryview", "help", "breakpoint", "aiter", "anext", "ascii", "bin",
			"hex", "oct", "complex",
		),
		receivers: set("self", "cls", "super"),
		stdTypes: set(
			"List", "Dict", "Set", "FrozenSet", "Tuple", "Optional", "Union", "Any",
			"Callable", "Iterable", "Iterator", "Sequence", "Mapping", "MutableMapping",
			"Type", "None", "Self", "Generator", "AsyncGenerator", "Awaitable", "Coroutine",
			"Literal", "Final", "ClassVar", "Protocol", "TypeVar", "Generic", "Exception",
			"ValueError", "TypeError", "KeyError", "RuntimeError", "NotImplementedError",
		),
		adjustKind: func(n syntax.Node, kind model.SymbolKind, name string, inType bool) model.SymbolKind {
			if kind != model.KindFunction && kind != model.KindMethod && kind != model.KindAsyncFunction {
				return kind
			}
			if inType && name == "__init__" {
				return model.KindConstructor
			}
			if kind == model.KindFunction && syntax.FirstChildOfKind(n, "async") != nil {
				return model.KindAsyncFunction
			}
			return kind
		},
		visibility: func(_ syntax.Node, name string, _ []byte, _ bool) model.Visibility {
			return pythonVisibility(name)
		},
		heritage: func(n syntax.Node, src []byte) []heritage {
			if n.Kind() != "class_definition" {
				return nil
			}
			args := n.ChildByField("superclasses")
			if args == nil {
				return nil
			}
			var out []heritage
			for _, c := range syntax.NamedChildren(args) {
				switch c.Kind() {
				case "identifier", "attribute":
					name := syntax.Text(c, src)
					if name != "object" {
						out = append(out, heritage{name: name, kind: model.RelInherits, node: c})
					}
				case "subscript":
					if v := c.ChildByField("value"); v != nil {
						out = append(out, heritage{name: syntax.Text(v, src), kind: model.RelInherits, node: c})
					}
				}
			}
			return out
		},
		decorators: func(n syntax.Node, _ []byte) []syntax.Node {
			p := n.Parent()
			if p == nil || p.Kind() != "decorated_definition" {
				return nil
			}
			var out []syntax.Node
			for _, c := range syntax.NamedChildren(p) {
				if c.Kind() == "decorator" && c.NamedChildCount() > 0 {
					out = append(out, c.NamedChild(0))
				}
			}
			return out
		},
		docs:    pythonDocstring,
		imports: pythonImports,
	})
}

// pythonVisibility applies the underscore naming convention. Dunder names
// are public.
func pythonVisibility(name string) model.Visibility {
	switch {
	case strings.HasPrefix(name, "__") && !strings.HasSuffix(name, "__"):
		return model.Private
	case strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "__"):
		return model.Protected
	}
	return model.Public
}

// pythonDocstring returns the string literal opening a function or class
// body.
func pythonDocstring(n syntax.Node, src []byte) string {
	body := n.ChildByField("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Kind() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	s := first.NamedChild(0)
	if s.Kind() != "string" {
		return ""
	}
	text := syntax.Text(s, src)
	text = strings.TrimLeft(text, "rRbBuUfF")
	return strings.TrimSpace(unquote(text))
}

func pythonImports(n syntax.Node, src []byte) ([]model.Import, bool) {
	switch n.Kind() {
	case "import_statement":
		var out []model.Import
		for _, c := range syntax.NamedChildren(n) {
			switch c.Kind() {
			case "dotted_name":
				out = append(out, model.Import{Source: syntax.Text(c, src)})
			case "aliased_import":
				out = append(out, model.Import{
					Source:      syntax.Text(c.ChildByField("name"), src),
					ModuleAlias: syntax.Text(c.ChildByField("alias"), src),
				})
			}
		}
		return out, false
	case "import_from_statement":
		mod := n.ChildByField("module_name")
		imp := model.Import{Source: strings.Join(strings.Fields(syntax.Text(mod, src)), "")}
		for _, c := range syntax.NamedChildren(n) {
			if syntax.Same(c, mod) {
				continue
			}
			switch c.Kind() {
			case "dotted_name", "identifier":
				imp.Names = append(imp.Names, model.ImportedName{Name: syntax.Text(c, src)})
			case "aliased_import":
				imp.Names = append(imp.Names, model.ImportedName{
					Name:  syntax.Text(c.ChildByField("name"), src),
					Alias: syntax.Text(c.ChildByField("alias"), src),
				})
			case "wildcard_import":
				imp.Wildcard = true
			}
		}
		return []model.Import{imp}, false
	}
	return nil, false
}

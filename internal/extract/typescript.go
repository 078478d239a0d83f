package extract

import (
	"strings"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/syntax"
)

func init() {
	register(lang.TypeScript, ecmaRules(true))
	register(lang.JavaScript, ecmaRules(false))
}

// ecmaRules builds the rules shared by TypeScript and JavaScript. typed adds
// the declarations and references only TypeScript has.
func ecmaRules(typed bool) *rules {
	r := &rules{
		fallback: map[string]model.SymbolKind{
			"function_declaration":           model.KindFunction,
			"generator_function_declaration": model.KindGenerator,
			"class_declaration":              model.KindClass,
			"method_definition":              model.KindMethod,
		},
		calls: map[string]string{
			"call_expression": "function",
			"new_expression":  "constructor",
		},
		instantiations: map[string]string{
			"new_expression": "constructor",
		},
		accesses: map[string]access{
			"member_expression": {object: "object", member: "property"},
		},
		heritageKinds: []string{"class_heritage", "extends_type_clause", "implements_clause", "extends_clause"},
		builtins: set(
			"require", "super", "parseInt", "parseFloat", "isNaN", "isFinite", "setTimeout",
			"setInterval", "clearTimeout", "clearInterval", "setImmediate", "queueMicrotask",
			"encodeURIComponent", "decodeURIComponent", "encodeURI", "decodeURI",
			"structuredClone", "fetch", "alert", "Number", "String", "Boolean", "Symbol",
			"BigInt", "Error", "TypeError", "RangeError", "Map", "Set", "WeakMap", "WeakSet",
			"Date", "Promise", "Array", "Object", "RegExp", "URL", "Proxy",
		),
		builtinReceivers: set(
			"console", "Math", "JSON", "Object", "Array", "Promise", "window", "document",
			"process", "Reflect", "Number", "String", "Symbol", "Date", "globalThis",
		),
		receivers: set("this", "super"),
		stdTypes: set(
			"Array", "Promise", "Record", "Partial", "Required", "Readonly", "Pick", "Omit",
			"Map", "Set", "WeakMap", "WeakSet", "Date", "Error", "Function", "Object",
			"String", "Number", "Boolean", "ReadonlyArray", "Iterable", "AsyncIterable",
			"PromiseLike", "RegExp", "Exclude", "Extract", "NonNullable", "ReturnType",
			"Parameters", "InstanceType", "Awaited", "Uint8Array", "ArrayBuffer", "JSX",
			"HTMLElement", "Event", "Element", "Node", "Symbol", "BigInt", "Iterator",
		),
		adjustKind:  ecmaKind,
		visibility:  ecmaVisibility,
		heritage:    ecmaHeritage,
		decorators:  ecmaDecorators,
		docs:        commentDocs(isDocBlock, "decorator"),
		properties:  ecmaProperties,
		imports:     ecmaImports,
		postProcess: ecmaDefaultExports,
		scopeName: func(n syntax.Node, src []byte) string {
			if n.Kind() == "module" || n.Kind() == "internal_module" {
				return unquote(syntax.Text(n.ChildByField("name"), src))
			}
			return ""
		},
	}
	if typed {
		r.fallback["abstract_class_declaration"] = model.KindClass
		r.fallback["interface_declaration"] = model.KindInterface
		r.fallback["type_alias_declaration"] = model.KindTypeAlias
		r.fallback["enum_declaration"] = model.KindEnum
		r.fallback["internal_module"] = model.KindNamespace
		r.fallback["method_signature"] = model.KindMethod
		r.qualifiedTypes = set("nested_type_identifier")
	}
	return r
}

func ecmaKind(n syntax.Node, kind model.SymbolKind, name string, inType bool) model.SymbolKind {
	if !kind.IsCallable() {
		return kind
	}
	if name == "constructor" && (inType || n.Kind() == "method_definition") {
		return model.KindConstructor
	}
	fn := n
	if n.Kind() == "variable_declarator" {
		fn = n.ChildByField("value")
	}
	if fn == nil {
		return kind
	}
	if syntax.FirstChildOfKind(fn, "async") != nil {
		if kind == model.KindFunction {
			return model.KindAsyncFunction
		}
		return kind
	}
	if fn.Kind() == "generator_function_declaration" || syntax.FirstChildOfKind(fn, "*") != nil {
		return model.KindGenerator
	}
	return kind
}

// ecmaVisibility: class members honour accessibility modifiers and #private
// names and are otherwise public; everything else is public only when
// exported.
func ecmaVisibility(n syntax.Node, name string, src []byte, inType bool) model.Visibility {
	if strings.HasPrefix(name, "#") {
		return model.Private
	}
	switch n.Kind() {
	case "method_definition", "method_signature", "abstract_method_signature", "public_field_definition":
		if m := syntax.FirstChildOfKind(n, "accessibility_modifier"); m != nil {
			switch syntax.Text(m, src) {
			case "private":
				return model.Private
			case "protected":
				return model.Protected
			}
		}
		return model.Public
	}
	if inType {
		return model.Public
	}
	if exportStatement(n) != nil {
		return model.Public
	}
	return model.Private
}

// exportStatement returns the export statement wrapping a declaration.
func exportStatement(n syntax.Node) syntax.Node {
	p := n.Parent()
	if n.Kind() == "variable_declarator" && p != nil {
		p = p.Parent()
	}
	if p != nil && p.Kind() == "export_statement" {
		return p
	}
	return nil
}

func ecmaProperties(n syntax.Node, _ string, src []byte) map[string]string {
	if ex := exportStatement(n); ex != nil && hasChildText(ex, "default", src) {
		return map[string]string{"export": "default"}
	}
	return nil
}

func ecmaHeritage(n syntax.Node, src []byte) []heritage {
	var out []heritage
	switch n.Kind() {
	case "class_declaration", "abstract_class_declaration", "class":
		h := syntax.FirstChildOfKind(n, "class_heritage")
		if h == nil {
			return nil
		}
		for _, c := range syntax.NamedChildren(h) {
			switch c.Kind() {
			case "extends_clause":
				out = append(out, heritageFrom(c, model.RelInherits, src)...)
			case "implements_clause":
				out = append(out, heritageFrom(c, model.RelImplements, src)...)
			default:
				if name := typeName(c, src); name != "" {
					out = append(out, heritage{name: name, kind: model.RelInherits, node: c})
				}
			}
		}
	case "interface_declaration":
		if c := syntax.FirstChildOfKind(n, "extends_type_clause", "extends_clause"); c != nil {
			out = append(out, heritageFrom(c, model.RelInherits, src)...)
		}
	}
	return out
}

// ecmaDecorators returns decorator expressions attached to n, either as
// children or as the siblings directly before it in a class body.
func ecmaDecorators(n syntax.Node, _ []byte) []syntax.Node {
	var out []syntax.Node
	for _, c := range syntax.Children(n) {
		if c.Kind() == "decorator" && c.NamedChildCount() > 0 {
			out = append(out, c.NamedChild(0))
		}
	}
	if parent, idx := indexInParent(n); parent != nil {
		var before []syntax.Node
		for i := idx - 1; i >= 0; i-- {
			c := parent.Child(i)
			if c == nil || c.Kind() != "decorator" {
				break
			}
			if c.NamedChildCount() > 0 {
				before = append([]syntax.Node{c.NamedChild(0)}, before...)
			}
		}
		out = append(before, out...)
	}
	return out
}

func ecmaImports(n syntax.Node, src []byte) ([]model.Import, bool) {
	switch n.Kind() {
	case "import_statement":
		imp := model.Import{Source: unquote(syntax.Text(n.ChildByField("source"), src))}
		if clause := syntax.FirstChildOfKind(n, "import_clause"); clause != nil {
			for _, c := range syntax.NamedChildren(clause) {
				switch c.Kind() {
				case "identifier":
					imp.Names = append(imp.Names, model.ImportedName{Name: "default", Alias: syntax.Text(c, src)})
				case "namespace_import":
					if id := syntax.FirstChildOfKind(c, "identifier"); id != nil {
						imp.ModuleAlias = syntax.Text(id, src)
					}
				case "named_imports":
					imp.Names = append(imp.Names, ecmaSpecifiers(c, "import_specifier", src)...)
				}
			}
		}
		return []model.Import{imp}, false
	case "export_statement":
		imp := model.Import{Source: unquote(syntax.Text(n.ChildByField("source"), src))}
		if clause := syntax.FirstChildOfKind(n, "export_clause"); clause != nil {
			imp.Names = ecmaSpecifiers(clause, "export_specifier", src)
		} else if ns := syntax.FirstChildOfKind(n, "namespace_export"); ns != nil {
			if id := syntax.FirstChildOfKind(ns, "identifier", "string"); id != nil {
				imp.ModuleAlias = unquote(syntax.Text(id, src))
			}
		} else {
			imp.Wildcard = true
		}
		return []model.Import{imp}, true
	case "call_expression":
		args := n.ChildByField("arguments")
		str := syntax.FirstChildOfKind(args, "string")
		if str == nil {
			return nil, false
		}
		imp := model.Import{Source: unquote(syntax.Text(str, src))}
		if p := n.Parent(); p != nil && p.Kind() == "variable_declarator" {
			switch target := p.ChildByField("name"); {
			case target == nil:
			case target.Kind() == "identifier":
				imp.ModuleAlias = syntax.Text(target, src)
			case target.Kind() == "object_pattern":
				for _, c := range syntax.NamedChildren(target) {
					switch c.Kind() {
					case "shorthand_property_identifier_pattern":
						imp.Names = append(imp.Names, model.ImportedName{Name: syntax.Text(c, src)})
					case "pair_pattern":
						imp.Names = append(imp.Names, model.ImportedName{
							Name:  syntax.Text(c.ChildByField("key"), src),
							Alias: syntax.Text(c.ChildByField("value"), src),
						})
					}
				}
			}
		}
		return []model.Import{imp}, false
	}
	return nil, false
}

func ecmaSpecifiers(n syntax.Node, kind string, src []byte) []model.ImportedName {
	var out []model.ImportedName
	for _, c := range syntax.NamedChildren(n) {
		if c.Kind() != kind {
			continue
		}
		name := model.ImportedName{Name: syntax.Text(c.ChildByField("name"), src)}
		if a := c.ChildByField("alias"); a != nil {
			name.Alias = syntax.Text(a, src)
		}
		if name.Name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ecmaDefaultExports tags symbols exported later with "export default X".
func ecmaDefaultExports(w *walker) {
	for _, c := range syntax.Children(w.pf.Root) {
		if c.Kind() != "export_statement" || !hasChildText(c, "default", w.src) {
			continue
		}
		v := c.ChildByField("value")
		if v == nil || v.Kind() != "identifier" {
			continue
		}
		name := syntax.Text(v, w.src)
		for i := range w.analysis.Symbols {
			s := &w.analysis.Symbols[i]
			if s.Name == name && s.QualifiedName == name {
				if s.Properties == nil {
					s.Properties = make(map[string]string)
				}
				s.Properties["export"] = "default"
			}
		}
	}
}

package extract

import (
	"strings"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/syntax"
)

var javaLangAnnotations = set(
	"Override", "Deprecated", "SuppressWarnings", "FunctionalInterface", "SafeVarargs",
)

func init() {
	register(lang.Java, &rules{
		fallback: map[string]model.SymbolKind{
			"class_declaration":           model.KindClass,
			"record_declaration":          model.KindClass,
			"interface_declaration":       model.KindInterface,
			"annotation_type_declaration": model.KindInterface,
			"enum_declaration":            model.KindEnum,
			"method_declaration":          model.KindMethod,
			"constructor_declaration":     model.KindConstructor,
		},
		calls: map[string]string{
			"method_invocation":          "name",
			"object_creation_expression": "type",
		},
		instantiations: map[string]string{
			"object_creation_expression": "type",
		},
		accesses: map[string]access{
			"field_access": {object: "object", member: "field"},
		},
		qualifiedTypes: set("scoped_type_identifier"),
		heritageKinds:  []string{"superclass", "super_interfaces", "extends_interfaces"},
		builtinReceivers: set(
			"System", "Math", "String", "Integer", "Long", "Double", "Boolean", "Character",
			"Arrays", "Collections", "Objects", "List", "Map", "Set", "Optional", "Stream",
			"Collectors", "Thread", "IntStream", "Files", "Paths",
		),
		receivers: set("this", "super"),
		stdTypes: set(
			"String", "Object", "Integer", "Long", "Double", "Float", "Boolean", "Character",
			"Byte", "Short", "Void", "Class", "List", "Map", "Set", "HashMap", "ArrayList",
			"HashSet", "LinkedList", "LinkedHashMap", "TreeMap", "Optional", "Collection",
			"Iterable", "Iterator", "Stream", "Exception", "RuntimeException", "Throwable",
			"Error", "IllegalArgumentException", "IllegalStateException", "IOException",
			"NullPointerException", "UnsupportedOperationException", "StringBuilder",
			"Runnable", "Callable", "Function", "Supplier", "Consumer", "Predicate",
			"BiFunction", "Comparable", "Comparator", "Override", "Deprecated",
			"SuppressWarnings", "FunctionalInterface",
		),
		visibility: javaVisibility,
		heritage: func(n syntax.Node, src []byte) []heritage {
			var out []heritage
			if sc := n.ChildByField("superclass"); sc != nil {
				out = append(out, heritageFrom(sc, model.RelInherits, src)...)
			}
			if ifs := n.ChildByField("interfaces"); ifs != nil {
				out = append(out, heritageFrom(ifs, model.RelImplements, src)...)
			}
			if ext := syntax.FirstChildOfKind(n, "extends_interfaces"); ext != nil {
				out = append(out, heritageFrom(ext, model.RelInherits, src)...)
			}
			return out
		},
		decorators: func(n syntax.Node, src []byte) []syntax.Node {
			var out []syntax.Node
			for _, c := range syntax.NamedChildren(syntax.FirstChildOfKind(n, "modifiers")) {
				if c.Kind() != "marker_annotation" && c.Kind() != "annotation" {
					continue
				}
				if javaLangAnnotations[syntax.Text(c.ChildByField("name"), src)] {
					continue
				}
				out = append(out, c)
			}
			return out
		},
		docs:    commentDocs(isDocBlock),
		module:  javaPackage,
		imports: javaImports,
	})
}

// javaVisibility reads access modifiers. Members without one are package
// private, except inside interfaces where they are public.
func javaVisibility(n syntax.Node, _ string, src []byte, _ bool) model.Visibility {
	if mods := syntax.FirstChildOfKind(n, "modifiers"); mods != nil {
		for _, c := range syntax.Children(mods) {
			switch syntax.Text(c, src) {
			case "public":
				return model.Public
			case "private":
				return model.Private
			case "protected":
				return model.Protected
			}
		}
	}
	if p := n.Parent(); p != nil && p.Kind() == "interface_body" {
		return model.Public
	}
	return model.Internal
}

func javaPackage(_ string, root syntax.Node, src []byte) string {
	pkg := syntax.FirstChildOfKind(root, "package_declaration")
	if pkg == nil {
		return ""
	}
	if id := syntax.FirstChildOfKind(pkg, "scoped_identifier", "identifier"); id != nil {
		return syntax.Text(id, src)
	}
	return ""
}

func javaImports(n syntax.Node, src []byte) ([]model.Import, bool) {
	if n.Kind() != "import_declaration" {
		return nil, false
	}
	path := syntax.FirstChildOfKind(n, "scoped_identifier", "identifier")
	if path == nil {
		return nil, false
	}
	full := syntax.Text(path, src)
	if syntax.FirstChildOfKind(n, "asterisk") != nil {
		return []model.Import{{Source: full, Wildcard: true}}, false
	}
	i := strings.LastIndexByte(full, '.')
	if i < 0 {
		return []model.Import{{Source: full}}, false
	}
	return []model.Import{{
		Source: full[:i],
		Names:  []model.ImportedName{{Name: full[i+1:]}},
	}}, false
}

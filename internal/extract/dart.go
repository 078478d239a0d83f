package extract

import (
	"strings"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/syntax"
)

func init() {
	register(lang.Dart, &rules{
		fallback: map[string]model.SymbolKind{
			syntax.DartClass:       model.KindClass,
			syntax.DartMixin:       model.KindClass,
			syntax.DartEnum:        model.KindEnum,
			syntax.DartTypeAlias:   model.KindTypeAlias,
			syntax.DartFunction:    model.KindFunction,
			syntax.DartMethod:      model.KindMethod,
			syntax.DartConstructor: model.KindConstructor,
		},
		calls: map[string]string{
			syntax.DartInvocation: "function",
			syntax.DartNew:        "type",
		},
		instantiations: map[string]string{
			syntax.DartNew: "type",
		},
		accesses: map[string]access{
			syntax.DartPropertyAccess: {object: "object", member: "field"},
		},
		refKinds:      set(syntax.DartTypeIdentifier),
		importKinds:   set(syntax.DartImport),
		heritageKinds: []string{syntax.DartSuperclass, syntax.DartMixins, syntax.DartInterfaces},
		builtins: set(
			"print", "identical", "identityHashCode", "assert", "List", "Map", "Set",
			"Future", "Stream", "Duration", "DateTime", "StringBuffer", "Exception",
			"ArgumentError", "StateError", "UnimplementedError", "override", "deprecated",
			"immutable", "required", "protected", "visibleForTesting", "pragma",
		),
		builtinReceivers: set("Future", "Stream", "Duration", "DateTime", "Math", "List", "Map", "int", "double", "String"),
		receivers:        set("this", "super"),
		stdTypes: set(
			"String", "List", "Map", "Set", "Iterable", "Future", "FutureOr", "Stream",
			"Object", "Function", "Null", "Never", "Type", "Duration", "DateTime",
			"Exception", "Error", "StackTrace", "Uri", "Symbol", "Comparable", "Record",
			"StreamController", "Completer", "Timer",
		),
		properties: func(n syntax.Node, name string, _ []byte) map[string]string {
			props := map[string]string{}
			if strings.HasPrefix(name, "_") {
				props["private"] = "true"
			}
			if n.Kind() == syntax.DartMixin {
				props["mixin"] = "true"
			}
			if len(props) == 0 {
				return nil
			}
			return props
		},
		heritage: func(n syntax.Node, src []byte) []heritage {
			var out []heritage
			if sc := n.ChildByField("superclass"); sc != nil && n.Kind() == syntax.DartClass {
				out = append(out, heritageFrom(sc, model.RelInherits, src)...)
			}
			if sc := n.ChildByField("superclass"); sc != nil && n.Kind() == syntax.DartMixin {
				out = append(out, heritageFrom(sc, model.RelImplements, src)...)
			}
			if mx := n.ChildByField("mixins"); mx != nil {
				out = append(out, heritageFrom(mx, model.RelInherits, src)...)
			}
			if ifs := n.ChildByField("interfaces"); ifs != nil {
				out = append(out, heritageFrom(ifs, model.RelImplements, src)...)
			}
			return out
		},
		decorators: dartAnnotations,
		docs:       commentDocs(isTripleSlash, syntax.DartAnnotation),
		scopeName: func(n syntax.Node, src []byte) string {
			if n.Kind() != syntax.DartExtension {
				return ""
			}
			if on := n.ChildByField("type"); on != nil && on.NamedChildCount() > 0 {
				return typeName(on.NamedChild(0), src)
			}
			return syntax.Text(n.ChildByField("name"), src)
		},
		imports: dartImports,
	})
}

// dartAnnotations returns the annotations written directly above n.
func dartAnnotations(n syntax.Node, _ []byte) []syntax.Node {
	parent, idx := indexInParent(n)
	if parent == nil {
		return nil
	}
	var out []syntax.Node
	for i := idx - 1; i >= 0; i-- {
		c := parent.Child(i)
		if c == nil {
			break
		}
		if c.Kind() == syntax.DartComment {
			continue
		}
		if c.Kind() != syntax.DartAnnotation {
			break
		}
		out = append([]syntax.Node{c}, out...)
	}
	return out
}

func dartImports(n syntax.Node, src []byte) ([]model.Import, bool) {
	imp := model.Import{Source: unquote(syntax.Text(n.ChildByField("uri"), src))}
	if a := n.ChildByField("alias"); a != nil {
		imp.ModuleAlias = syntax.Text(a, src)
	}
	if show := syntax.FirstChildOfKind(n, syntax.DartShow); show != nil {
		for _, c := range syntax.NamedChildren(show) {
			imp.Names = append(imp.Names, model.ImportedName{Name: syntax.Text(c, src)})
		}
	}
	if imp.ModuleAlias == "" && len(imp.Names) == 0 {
		imp.Wildcard = true
	}
	return []model.Import{imp}, strings.HasPrefix(syntax.Text(n, src), "export")
}

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

// access names the object and member fields of a member-access node.
type access struct {
	object string
	member string
}

// heritage is one base type named in a declaration header.
type heritage struct {
	name string
	kind model.RelationshipKind
	node syntax.Node
}

// rules is the per-language knowledge the walker is driven by. Hooks left
// nil fall back to the generic behaviour.
type rules struct {
	// fallback maps node kinds to symbol kinds for trees the definition
	// query yields nothing for.
	fallback map[string]model.SymbolKind

	// calls maps call-like node kinds to the field holding the callee.
	calls map[string]string
	// instantiations maps construction node kinds to the field holding the
	// constructed type.
	instantiations map[string]string
	// accesses maps member-access node kinds to their fields.
	accesses map[string]access
	// qualifiedTypes are node kinds whose "name" child is a type reached
	// through a package or module path.
	qualifiedTypes map[string]bool
	// heritageKinds are node kinds whose type references are reported as
	// Inherits/Implements instead of References.
	heritageKinds []string
	// refKinds are collected as type references when the language has no
	// uses query.
	refKinds map[string]bool
	// importKinds are collected as imports when the language has no
	// imports query.
	importKinds map[string]bool

	builtins         map[string]bool
	builtinReceivers map[string]bool
	stdTypes         map[string]bool
	receivers        map[string]bool

	defName     func(n syntax.Node) syntax.Node
	adjustKind  func(n syntax.Node, kind model.SymbolKind, name string, inType bool) model.SymbolKind
	visibility  func(n syntax.Node, name string, src []byte, inType bool) model.Visibility
	properties  func(n syntax.Node, name string, src []byte) map[string]string
	qualify     func(n syntax.Node, name, qualified string, src []byte) (string, string)
	heritage    func(n syntax.Node, src []byte) []heritage
	decorators  func(n syntax.Node, src []byte) []syntax.Node
	docs        func(n syntax.Node, src []byte) string
	module      func(path string, root syntax.Node, src []byte) string
	scopeName   func(n syntax.Node, src []byte) string
	calleeName  func(n syntax.Node, src []byte) string
	imports     func(n syntax.Node, src []byte) (imps []model.Import, reexport bool)
	extra       func(w *walker, n syntax.Node)
	skipRef     func(n syntax.Node) bool
	postProcess func(w *walker)
}

var registry = map[lang.Language]*rules{}

func register(l lang.Language, r *rules) {
	registry[l] = r
}

func rulesFor(l lang.Language) (*rules, bool) {
	r, ok := registry[l]
	return r, ok
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var identRe = regexp.MustCompile(`^[\p{L}_$][\p{L}\p{N}_$]*$`)

// isIdent reports whether s is a plain identifier in every supported
// language.
func isIdent(s string) bool {
	return identRe.MatchString(s)
}

// isLeaf reports whether n is an identifier-like leaf node.
func isLeaf(n syntax.Node, src []byte) bool {
	return n != nil && n.ChildCount() == 0 && isIdent(syntax.Text(n, src))
}

// looksLikeType reports whether name is a plausible user-defined type name.
func (r *rules) looksLikeType(name string) bool {
	if utf8.RuneCountInString(name) < 2 || r.stdTypes[name] {
		return false
	}
	first, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(first)
}

// typeName reduces a type node to its name without type arguments, pointer
// markers or nullability suffixes.
func typeName(n syntax.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "generic_type":
		if t := n.ChildByField("type"); t != nil {
			return typeName(t, src)
		}
		if t := n.ChildByField("name"); t != nil {
			return typeName(t, src)
		}
		if n.NamedChildCount() > 0 {
			return typeName(n.NamedChild(0), src)
		}
	case "pointer_type", "reference_type", "type_elem", "constraint_elem":
		for _, c := range syntax.NamedChildren(n) {
			if name := typeName(c, src); name != "" {
				return name
			}
		}
		return ""
	case "type_arguments", "type_parameters", "type_list":
		return ""
	}
	text := syntax.Text(n, src)
	if i := strings.IndexAny(text, "<[({"); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "?")
	return strings.Join(strings.Fields(text), "")
}

// lastSegment returns the final component of a dotted or "::" path.
func lastSegment(s string) string {
	if i := strings.LastIndex(s, "::"); i >= 0 {
		s = s[i+2:]
	}
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// firstSegment returns the leading component of a dotted or "::" path.
func firstSegment(s string) string {
	if i := strings.Index(s, "::"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return s
}

// unquote strips one layer of string delimiters.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"""`, `'''`, `"`, `'`, "`"} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// indexInParent returns n's position among its parent's children.
func indexInParent(n syntax.Node) (syntax.Node, int) {
	p := n.Parent()
	if p == nil {
		return nil, -1
	}
	for i := 0; i < p.ChildCount(); i++ {
		if syntax.Same(p.Child(i), n) {
			return p, i
		}
	}
	return p, -1
}

// isFieldOf reports whether n is the child stored under field of its parent.
func isFieldOf(n syntax.Node, field string) bool {
	p := n.Parent()
	return p != nil && syntax.Same(p.ChildByField(field), n)
}

// hasChildText reports whether n has a direct child whose text is word.
func hasChildText(n syntax.Node, word string, src []byte) bool {
	for _, c := range syntax.Children(n) {
		if syntax.Text(c, src) == word {
			return true
		}
	}
	return false
}

// heritageFrom collects the type names found among n's named children.
func heritageFrom(n syntax.Node, kind model.RelationshipKind, src []byte) []heritage {
	var out []heritage
	for _, c := range syntax.NamedChildren(n) {
		switch c.Kind() {
		case "type_list":
			out = append(out, heritageFrom(c, kind, src)...)
			continue
		case "type_arguments", "comment":
			continue
		}
		if name := typeName(c, src); name != "" && !strings.ContainsAny(name, "(){}") {
			out = append(out, heritage{name: name, kind: kind, node: c})
		}
	}
	return out
}

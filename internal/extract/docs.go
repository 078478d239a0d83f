package extract

import (
	"strings"

	"github.com/jward/agentmap/internal/syntax"
)

// docWrappers are nodes that sit between a declaration and the comment
// documenting it.
var docWrappers = map[string]bool{
	"export_statement":     true,
	"lexical_declaration":  true,
	"variable_declaration": true,
	"decorated_definition": true,
	"type_declaration":     true,
}

// commentDocs returns a doc extractor that accepts the comments above a
// declaration when accept approves their raw text. Attribute and decorator
// siblings between the comment and the declaration are stepped over.
func commentDocs(accept func(text string) bool, between ...string) func(syntax.Node, []byte) string {
	skip := set(between...)
	return func(n syntax.Node, src []byte) string {
		anchor := n
		for p := anchor.Parent(); p != nil && docWrappers[p.Kind()]; p = p.Parent() {
			anchor = p
		}
		parent, idx := indexInParent(anchor)
		if parent == nil || idx <= 0 {
			return ""
		}
		row := anchor.StartPoint().Row
		var lines []string
		for i := idx - 1; i >= 0; i-- {
			s := parent.Child(i)
			if s == nil {
				break
			}
			if skip[s.Kind()] {
				row = s.StartPoint().Row
				continue
			}
			if !strings.Contains(s.Kind(), "comment") || s.EndPoint().Row < row-1 {
				break
			}
			text := syntax.Text(s, src)
			if !accept(text) {
				break
			}
			lines = append([]string{cleanComment(text)}, lines...)
			row = s.StartPoint().Row
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}
}

// cleanComment strips comment delimiters and leading asterisks.
func cleanComment(text string) string {
	text = strings.TrimSpace(text)
	for _, p := range []string{"///", "//!", "//", "/**", "/*", "#"} {
		if strings.HasPrefix(text, p) {
			text = text[len(p):]
			break
		}
	}
	text = strings.TrimSuffix(text, "*/")
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func isDocBlock(text string) bool { return strings.HasPrefix(text, "/**") }

func isTripleSlash(text string) bool {
	return strings.HasPrefix(text, "///") || isDocBlock(text)
}

func isLineComment(text string) bool { return strings.HasPrefix(text, "//") }

package syntax

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Point is a zero-based row/column position.
type Point struct {
	Row    int
	Column int
}

// Node is a concrete syntax tree node. Tree-sitter trees and the structural
// Dart trees both satisfy it, so extractors never see grammar bindings.
// Methods returning Node return a nil interface when there is no such node.
type Node interface {
	Kind() string
	StartByte() int
	EndByte() int
	StartPoint() Point
	EndPoint() Point
	IsNamed() bool
	ChildCount() int
	Child(i int) Node
	NamedChildCount() int
	NamedChild(i int) Node
	ChildByField(name string) Node
	Parent() Node
}

// Text returns the source slice spanned by n.
func Text(n Node, src []byte) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if start < 0 || end > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}

// Same reports whether a and b denote the same node.
func Same(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind() == b.Kind() && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

// Children returns every child of n in order.
func Children(n Node) []Node {
	if n == nil {
		return nil
	}
	out := make([]Node, 0, n.ChildCount())
	for i := 0; i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// NamedChildren returns the named children of n in order.
func NamedChildren(n Node) []Node {
	if n == nil {
		return nil
	}
	out := make([]Node, 0, n.NamedChildCount())
	for i := 0; i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// FirstChildOfKind returns the first direct child of n with one of kinds.
func FirstChildOfKind(n Node, kinds ...string) Node {
	if n == nil {
		return nil
	}
	for i := 0; i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		for _, k := range kinds {
			if c.Kind() == k {
				return c
			}
		}
	}
	return nil
}

// Walk visits n and its descendants in pre-order. Returning false from enter
// skips the node's children; leave runs after the children either way.
func Walk(n Node, enter func(Node) bool, leave func(Node)) {
	if n == nil {
		return
	}
	if enter(n) {
		for i := 0; i < n.ChildCount(); i++ {
			Walk(n.Child(i), enter, leave)
		}
	}
	if leave != nil {
		leave(n)
	}
}

// Ancestor returns the nearest ancestor of n with one of kinds.
func Ancestor(n Node, kinds ...string) Node {
	if n == nil {
		return nil
	}
	for p := n.Parent(); p != nil; p = p.Parent() {
		for _, k := range kinds {
			if p.Kind() == k {
				return p
			}
		}
	}
	return nil
}

// tsNode adapts a tree-sitter node.
type tsNode struct {
	n *sitter.Node
}

// Wrap adapts a tree-sitter node, returning nil for a nil node.
func Wrap(n *sitter.Node) Node {
	if n == nil {
		return nil
	}
	return tsNode{n: n}
}

// Unwrap returns the tree-sitter node behind n, if any.
func Unwrap(n Node) *sitter.Node {
	if t, ok := n.(tsNode); ok {
		return t.n
	}
	return nil
}

func (t tsNode) Kind() string   { return t.n.Type() }
func (t tsNode) StartByte() int { return int(t.n.StartByte()) }
func (t tsNode) EndByte() int   { return int(t.n.EndByte()) }
func (t tsNode) IsNamed() bool  { return t.n.IsNamed() }

func (t tsNode) StartPoint() Point {
	p := t.n.StartPoint()
	return Point{Row: int(p.Row), Column: int(p.Column)}
}

func (t tsNode) EndPoint() Point {
	p := t.n.EndPoint()
	return Point{Row: int(p.Row), Column: int(p.Column)}
}

func (t tsNode) ChildCount() int       { return int(t.n.ChildCount()) }
func (t tsNode) Child(i int) Node      { return Wrap(t.n.Child(i)) }
func (t tsNode) NamedChildCount() int  { return int(t.n.NamedChildCount()) }
func (t tsNode) NamedChild(i int) Node { return Wrap(t.n.NamedChild(i)) }
func (t tsNode) Parent() Node          { return Wrap(t.n.Parent()) }

func (t tsNode) ChildByField(name string) Node {
	return Wrap(t.n.ChildByFieldName(name))
}

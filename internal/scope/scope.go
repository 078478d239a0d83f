// Package scope tracks the stack of enclosing declarations during a syntax
// tree traversal and turns it into qualified names.
package scope

import (
	"strings"

	"github.com/jward/agentmap/internal/lang"
)

// Kind is the kind of a scope frame.
type Kind int

const (
	File Kind = iota
	Module
	Namespace
	Class
	Interface
	Trait
	Struct
	Enum
	Function
	Method
	Block
	Lambda
	Impl
)

var kindNames = [...]string{
	File:      "file",
	Module:    "module",
	Namespace: "namespace",
	Class:     "class",
	Interface: "interface",
	Trait:     "trait",
	Struct:    "struct",
	Enum:      "enum",
	Function:  "function",
	Method:    "method",
	Block:     "block",
	Lambda:    "lambda",
	Impl:      "impl",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Named reports whether frames of kind k contribute to qualified names.
func (k Kind) Named() bool {
	switch k {
	case File, Block, Lambda:
		return false
	}
	return true
}

// IsType reports whether k is a type-like scope that can own methods.
func (k Kind) IsType() bool {
	switch k {
	case Class, Interface, Trait, Struct, Enum, Impl:
		return true
	}
	return false
}

// IsCallable reports whether k is a function-like scope.
func (k Kind) IsCallable() bool {
	switch k {
	case Function, Method, Lambda:
		return true
	}
	return false
}

// Frame is one entry on the scope stack. Lines are 1-indexed.
type Frame struct {
	Kind      Kind
	Name      string
	StartLine int
	EndLine   int
}

// Separator joins qualified name segments.
const Separator = "::"

// Tracker is the scope stack for one file. The file frame sits at the base
// and is never popped.
type Tracker struct {
	frames []Frame
}

// NewTracker starts a stack holding only the file frame for path.
func NewTracker(path string, lines int) *Tracker {
	return &Tracker{frames: []Frame{{Kind: File, Name: path, StartLine: 1, EndLine: lines}}}
}

// Push enters a scope.
func (t *Tracker) Push(f Frame) {
	t.frames = append(t.frames, f)
}

// Pop leaves the innermost scope. The file frame stays; popping it reports
// false.
func (t *Tracker) Pop() (Frame, bool) {
	if len(t.frames) <= 1 {
		return Frame{}, false
	}
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	return f, true
}

// Current returns the innermost frame.
func (t *Tracker) Current() Frame {
	return t.frames[len(t.frames)-1]
}

// Depth returns the number of frames, counting the file frame.
func (t *Tracker) Depth() int {
	return len(t.frames)
}

// IsInScope reports whether any frame on the stack has kind k.
func (t *Tracker) IsInScope(k Kind) bool {
	_, ok := t.FindEnclosing(k)
	return ok
}

// FindEnclosing returns the innermost frame of kind k.
func (t *Tracker) FindEnclosing(k Kind) (Frame, bool) {
	for i := len(t.frames) - 1; i >= 0; i-- {
		if t.frames[i].Kind == k {
			return t.frames[i], true
		}
	}
	return Frame{}, false
}

// EnclosingType returns the innermost type-like frame.
func (t *Tracker) EnclosingType() (Frame, bool) {
	return t.find(Kind.IsType)
}

// EnclosingCallable returns the innermost function-like frame.
func (t *Tracker) EnclosingCallable() (Frame, bool) {
	return t.find(Kind.IsCallable)
}

// DirectlyInType reports whether the innermost non-block frame is a type,
// meaning a function declared here is a method.
func (t *Tracker) DirectlyInType() bool {
	for i := len(t.frames) - 1; i > 0; i-- {
		switch k := t.frames[i].Kind; {
		case k == Block:
			continue
		case k.IsType():
			return true
		default:
			return false
		}
	}
	return false
}

func (t *Tracker) find(pred func(Kind) bool) (Frame, bool) {
	for i := len(t.frames) - 1; i >= 0; i-- {
		if pred(t.frames[i].Kind) {
			return t.frames[i], true
		}
	}
	return Frame{}, false
}

// ScopePath returns the names of the named frames from outermost to
// innermost.
func (t *Tracker) ScopePath() []string {
	var path []string
	for _, f := range t.frames {
		if f.Kind.Named() && f.Name != "" {
			path = append(path, f.Name)
		}
	}
	return path
}

// QualifiedName prefixes name with the current scope path.
func (t *Tracker) QualifiedName(name string) string {
	path := t.ScopePath()
	if len(path) == 0 {
		return name
	}
	return strings.Join(append(path, name), Separator)
}

// frameKinds maps node kinds to frame kinds per language.
var frameKinds = map[lang.Language]map[string]Kind{
	lang.Rust: {
		"mod_item":           Module,
		"impl_item":          Impl,
		"trait_item":         Trait,
		"struct_item":        Struct,
		"union_item":         Struct,
		"enum_item":          Enum,
		"function_item":      Function,
		"closure_expression": Lambda,
	},
	lang.Python: {
		"class_definition":    Class,
		"function_definition": Function,
		"lambda":              Lambda,
	},
	lang.TypeScript: {
		"internal_module":                Namespace,
		"module":                         Namespace,
		"class_declaration":              Class,
		"abstract_class_declaration":     Class,
		"class":                          Class,
		"interface_declaration":          Interface,
		"enum_declaration":               Enum,
		"function_declaration":           Function,
		"generator_function_declaration": Function,
		"method_definition":              Method,
		"arrow_function":                 Lambda,
		"function_expression":            Lambda,
	},
	lang.JavaScript: {
		"class_declaration":              Class,
		"class":                          Class,
		"function_declaration":           Function,
		"generator_function_declaration": Function,
		"method_definition":              Method,
		"arrow_function":                 Lambda,
		"function_expression":            Lambda,
		"function":                       Lambda,
	},
	lang.Go: {
		"function_declaration": Function,
		"method_declaration":   Method,
		"struct_type":          Struct,
		"interface_type":       Interface,
		"func_literal":         Lambda,
	},
	lang.Java: {
		"class_declaration":           Class,
		"record_declaration":          Class,
		"enum_declaration":            Enum,
		"interface_declaration":       Interface,
		"annotation_type_declaration": Interface,
		"method_declaration":          Method,
		"constructor_declaration":     Method,
		"lambda_expression":           Lambda,
		"static_initializer":          Block,
	},
	lang.Dart: {
		"class_definition":      Class,
		"mixin_declaration":     Class,
		"extension_declaration": Impl,
		"enum_declaration":      Enum,
		"function_signature":    Function,
		"method_signature":      Method,
		"constructor_signature": Method,
	},
}

// KindFor returns the frame kind a node of nodeKind opens in language l.
func KindFor(l lang.Language, nodeKind string) (Kind, bool) {
	k, ok := frameKinds[l][nodeKind]
	return k, ok
}

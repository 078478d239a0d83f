// Package model holds the data produced by the analysis pipeline: symbols,
// relationships, imports and the per-file CodeAnalysis that carries them.
package model

import "github.com/jward/agentmap/internal/lang"

// SymbolKind is the closed set of declaration kinds.
type SymbolKind string

const (
	KindFunction      SymbolKind = "function"
	KindMethod        SymbolKind = "method"
	KindConstructor   SymbolKind = "constructor"
	KindAsyncFunction SymbolKind = "async_function"
	KindGenerator     SymbolKind = "generator"
	KindLambda        SymbolKind = "lambda"
	KindClass         SymbolKind = "class"
	KindStruct        SymbolKind = "struct"
	KindInterface     SymbolKind = "interface"
	KindTrait         SymbolKind = "trait"
	KindEnum          SymbolKind = "enum"
	KindTypeAlias     SymbolKind = "type_alias"
	KindVariable      SymbolKind = "variable"
	KindConstant      SymbolKind = "constant"
	KindParameter     SymbolKind = "parameter"
	KindField         SymbolKind = "field"
	KindProperty      SymbolKind = "property"
	KindModule        SymbolKind = "module"
	KindNamespace     SymbolKind = "namespace"
	KindPackage       SymbolKind = "package"
	KindImport        SymbolKind = "import"
	KindExport        SymbolKind = "export"
	KindMacro         SymbolKind = "macro"
	KindDecorator     SymbolKind = "decorator"
	KindAnnotation    SymbolKind = "annotation"
	KindUnknown       SymbolKind = "unknown"
)

// IsCallable reports whether symbols of kind k own a body that can make calls.
func (k SymbolKind) IsCallable() bool {
	switch k {
	case KindFunction, KindMethod, KindConstructor, KindAsyncFunction, KindGenerator, KindLambda:
		return true
	}
	return false
}

// IsType reports whether k declares a type that can own methods.
func (k SymbolKind) IsType() bool {
	switch k {
	case KindClass, KindStruct, KindInterface, KindTrait, KindEnum:
		return true
	}
	return false
}

// Visibility of a declaration.
type Visibility string

const (
	Public      Visibility = "public"
	Private     Visibility = "private"
	Protected   Visibility = "protected"
	Internal    Visibility = "internal"
	Unspecified Visibility = "unspecified"
)

// RelationshipKind is the closed set of edge kinds.
type RelationshipKind string

const (
	RelInherits     RelationshipKind = "inherits"
	RelImplements   RelationshipKind = "implements"
	RelTypeOf       RelationshipKind = "type_of"
	RelHasField     RelationshipKind = "has_field"
	RelHasMethod    RelationshipKind = "has_method"
	RelContains     RelationshipKind = "contains"
	RelImports      RelationshipKind = "imports"
	RelUses         RelationshipKind = "uses"
	RelCalls        RelationshipKind = "calls"
	RelInstantiates RelationshipKind = "instantiates"
	RelReferences   RelationshipKind = "references"
	RelReturns      RelationshipKind = "returns"
	RelTakesParam   RelationshipKind = "takes_param"
	RelExports      RelationshipKind = "exports"
	RelReExports    RelationshipKind = "re_exports"
	RelDecoratedBy  RelationshipKind = "decorated_by"
	RelUnknown      RelationshipKind = "unknown"
)

// SourceLocation is a span in a file. Lines are 1-indexed, columns 0-indexed;
// EndColumn is exclusive. ByteOffset and ByteLength index the raw content.
type SourceLocation struct {
	File        string `json:"file" yaml:"file"`
	StartLine   int    `json:"start_line" yaml:"start_line"`
	StartColumn int    `json:"start_column" yaml:"start_column"`
	EndLine     int    `json:"end_line" yaml:"end_line"`
	EndColumn   int    `json:"end_column" yaml:"end_column"`
	ByteOffset  int    `json:"byte_offset" yaml:"byte_offset"`
	ByteLength  int    `json:"byte_length" yaml:"byte_length"`
}

// Contains reports whether the byte span of other lies within l.
func (l SourceLocation) Contains(other SourceLocation) bool {
	return other.ByteOffset >= l.ByteOffset &&
		other.ByteOffset+other.ByteLength <= l.ByteOffset+l.ByteLength
}

// Symbol is a named declaration. QualifiedName joins the enclosing named
// scopes with "::"; Module is the language-specific module path of the file.
type Symbol struct {
	ID            SymbolID          `json:"id" yaml:"id"`
	Name          string            `json:"name" yaml:"name"`
	Kind          SymbolKind        `json:"kind" yaml:"kind"`
	Location      SourceLocation    `json:"location" yaml:"location"`
	Visibility    Visibility        `json:"visibility" yaml:"visibility"`
	CodeContent   string            `json:"code_content" yaml:"code_content"`
	Documentation string            `json:"documentation,omitempty" yaml:"documentation,omitempty"`
	QualifiedName string            `json:"qualified_name" yaml:"qualified_name"`
	Module        string            `json:"module,omitempty" yaml:"module,omitempty"`
	Properties    map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// FQN returns the fully-qualified name used by the project symbol table.
func (s *Symbol) FQN() string {
	qn := s.QualifiedName
	if qn == "" {
		qn = s.Name
	}
	if s.Module == "" {
		return qn
	}
	return s.Module + "::" + qn
}

// Relationship properties written during resolution.
const (
	PropResolution  = "resolution"
	PropCandidates  = "candidates"
	PropStrategy    = "strategy"
	PropQualifier   = "qualifier"
	PropDisplayName = "name"
)

// Values of PropResolution.
const (
	ResolutionResolved   = "resolved"
	ResolutionAmbiguous  = "ambiguous"
	ResolutionExternal   = "external"
	ResolutionUnresolved = "unresolved"
)

// DefaultConfidence is assigned to edges with an unambiguous target.
const (
	DefaultConfidence   = 1.0
	AmbiguousConfidence = 0.8
)

// Relationship is a typed edge between two symbols. To starts as a bare
// reference and is rewritten once during project resolution.
type Relationship struct {
	From       SymbolID          `json:"from" yaml:"from"`
	To         SymbolID          `json:"to" yaml:"to"`
	Kind       RelationshipKind  `json:"kind" yaml:"kind"`
	Location   SourceLocation    `json:"location" yaml:"location"`
	Confidence float64           `json:"confidence" yaml:"confidence"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// SetProperty records a key/value pair, allocating the map on first use.
func (r *Relationship) SetProperty(key, value string) {
	if r.Properties == nil {
		r.Properties = make(map[string]string)
	}
	r.Properties[key] = value
}

// Resolution returns the resolution outcome recorded on r, or "".
func (r *Relationship) Resolution() string {
	return r.Properties[PropResolution]
}

// ImportedName is one name pulled in by an import, with its optional alias.
type ImportedName struct {
	Name  string `json:"name" yaml:"name"`
	Alias string `json:"alias,omitempty" yaml:"alias,omitempty"`
}

// Local returns the name the import binds in the importing file.
func (n ImportedName) Local() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// Import is one import statement.
type Import struct {
	Source      string         `json:"source" yaml:"source"`
	Names       []ImportedName `json:"names,omitempty" yaml:"names,omitempty"`
	ModuleAlias string         `json:"module_alias,omitempty" yaml:"module_alias,omitempty"`
	Wildcard    bool           `json:"wildcard,omitempty" yaml:"wildcard,omitempty"`
	Location    SourceLocation `json:"location" yaml:"location"`
}

// Metadata describes a single file analysis.
type Metadata struct {
	LineCount      int               `json:"line_count" yaml:"line_count"`
	AnalysisTimeMs int64             `json:"analysis_time_ms" yaml:"analysis_time_ms"`
	ContentHash    string            `json:"content_hash" yaml:"content_hash"`
	Properties     map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// CodeAnalysis is everything extracted from one file.
type CodeAnalysis struct {
	Path          string         `json:"path" yaml:"path"`
	Language      lang.Language  `json:"language" yaml:"language"`
	Symbols       []Symbol       `json:"symbols" yaml:"symbols"`
	Relationships []Relationship `json:"relationships" yaml:"relationships"`
	Imports       []Import       `json:"imports" yaml:"imports"`
	Metadata      Metadata       `json:"metadata" yaml:"metadata"`
}

// Clone returns a deep copy so cached analyses are never aliased by a
// later resolution pass.
func (a *CodeAnalysis) Clone() *CodeAnalysis {
	if a == nil {
		return nil
	}
	out := *a
	out.Symbols = make([]Symbol, len(a.Symbols))
	for i, s := range a.Symbols {
		s.Properties = cloneProps(s.Properties)
		out.Symbols[i] = s
	}
	out.Relationships = make([]Relationship, len(a.Relationships))
	for i, r := range a.Relationships {
		r.Properties = cloneProps(r.Properties)
		out.Relationships[i] = r
	}
	out.Imports = make([]Import, len(a.Imports))
	for i, imp := range a.Imports {
		imp.Names = append([]ImportedName(nil), imp.Names...)
		out.Imports[i] = imp
	}
	out.Metadata.Properties = cloneProps(a.Metadata.Properties)
	return &out
}

func cloneProps(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LineCount counts lines the way editors do: 0 for empty content, otherwise
// the number of newlines plus one for a final unterminated line.
func LineCount(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := 0
	for _, b := range content {
		if b == '\n' {
			n++
		}
	}
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

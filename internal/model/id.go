package model

import (
	"strconv"
	"strings"
)

// SymbolID identifies a symbol as "<file>:<line>:<name>". Before resolution a
// relationship target is usually a bare reference holding only a name or a
// module path.
type SymbolID string

// FileScopeName is the pseudo-symbol used as the source of file-level edges.
const FileScopeName = "__file__"

// UnresolvedPrefix marks a target that could not be resolved under the Flag
// policy.
const UnresolvedPrefix = "UNRESOLVED::"

// NewSymbolID builds the identity of a symbol declared at line in file.
func NewSymbolID(file string, line int, name string) SymbolID {
	return SymbolID(file + ":" + strconv.Itoa(line) + ":" + name)
}

// BareRef builds an unresolved reference carrying only a name.
func BareRef(name string) SymbolID {
	return SymbolID(name)
}

// FileScope returns the pseudo-symbol attributed to top-level code in file.
func FileScope(file string) SymbolID {
	return NewSymbolID(file, 0, FileScopeName)
}

// Flagged returns the Flag-policy rewrite of an unresolved name.
func Flagged(name string) SymbolID {
	return NewSymbolID("", 0, UnresolvedPrefix+name)
}

// ExternalRef returns the namespaced form used for targets outside the project.
func ExternalRef(module, name string) SymbolID {
	if module == "" {
		return SymbolID(name)
	}
	return SymbolID(module + "::" + name)
}

// split locates the last ":<digits>:" separator. Drive letters and "::"
// inside names never satisfy it, so they stay part of the path or name.
func (id SymbolID) split() (file string, line int, name string, ok bool) {
	s := string(id)
	for end := strings.LastIndexByte(s, ':'); end > 0; end = strings.LastIndexByte(s[:end], ':') {
		start := strings.LastIndexByte(s[:end], ':')
		if start < 0 {
			return "", 0, "", false
		}
		digits := s[start+1 : end]
		if digits == "" {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n < 0 || digits[0] == '+' {
			continue
		}
		return s[:start], n, s[end+1:], true
	}
	return "", 0, "", false
}

// IsResolved reports whether id has the file:line:name shape. Names that
// themselves contain ":<digits>:" would be misread; relationships therefore
// also carry an explicit resolution property.
func (id SymbolID) IsResolved() bool {
	_, _, _, ok := id.split()
	return ok
}

// IsFlagged reports whether id is a Flag-policy unresolved marker.
func (id SymbolID) IsFlagged() bool {
	return strings.HasPrefix(id.Name(), UnresolvedPrefix)
}

// Name returns the name component, or the whole reference when bare.
func (id SymbolID) Name() string {
	if _, _, name, ok := id.split(); ok {
		return name
	}
	return string(id)
}

// File returns the file component, or "" for bare references.
func (id SymbolID) File() string {
	file, _, _, _ := id.split()
	return file
}

// Line returns the line component, or 0 for bare references.
func (id SymbolID) Line() int {
	_, line, _, _ := id.split()
	return line
}

func (id SymbolID) String() string {
	return string(id)
}

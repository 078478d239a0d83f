// Package lang is the language registry: it maps file extensions to
// language tags and language tags to tree-sitter grammars.
package lang

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language is a canonical language tag.
type Language string

const (
	Rust       Language = "rust"
	Python     Language = "python"
	TypeScript Language = "typescript"
	JavaScript Language = "javascript"
	Go         Language = "go"
	Java       Language = "java"
	Dart       Language = "dart"
)

func (l Language) String() string { return string(l) }

// extToLanguage maps lowercased file extensions to languages.
var extToLanguage = map[string]Language{
	".rs":   Rust,
	".py":   Python,
	".pyi":  Python,
	".ts":   TypeScript,
	".tsx":  TypeScript,
	".js":   JavaScript,
	".jsx":  JavaScript,
	".mjs":  JavaScript,
	".cjs":  JavaScript,
	".go":   Go,
	".java": Java,
	".dart": Dart,
}

// Grammar keys. TSX shares the TypeScript tag but needs its own grammar.
const (
	grammarTSX = "tsx"
)

// grammars is lazily initialized on first lookup.
var (
	grammars     map[string]*sitter.Language
	grammarsOnce sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		grammars = map[string]*sitter.Language{
			string(Rust):       rust.GetLanguage(),
			string(Python):     python.GetLanguage(),
			string(TypeScript): ts.GetLanguage(),
			grammarTSX:         tsx.GetLanguage(),
			string(JavaScript): javascript.GetLanguage(),
			string(Go):         golang.GetLanguage(),
			string(Java):       java.GetLanguage(),
		}
	})
}

// UnsupportedError reports a path whose extension maps to no language.
type UnsupportedError struct {
	Path string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported language for %s", e.Path)
}

// ForPath returns the language of path from its extension. Matching is
// case-insensitive.
func ForPath(path string) (Language, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if l, ok := extToLanguage[ext]; ok {
		return l, nil
	}
	return "", &UnsupportedError{Path: path}
}

// ForExtension looks up an extension given with or without its leading dot.
func ForExtension(ext string) (Language, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	l, ok := extToLanguage[ext]
	return l, ok
}

// Parse converts a configuration string into a Language.
func Parse(name string) (Language, bool) {
	l := Language(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range All() {
		if l == known {
			return l, true
		}
	}
	return "", false
}

// All returns every supported language in a stable order.
func All() []Language {
	return []Language{Rust, Python, TypeScript, JavaScript, Go, Java, Dart}
}

// Extensions returns the sorted extensions registered for l, or every
// registered extension when l is empty.
func Extensions(l Language) []string {
	var out []string
	for ext, el := range extToLanguage {
		if l == "" || el == l {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// GrammarKey names the grammar used for path. It differs from the language
// tag only for TSX sources.
func GrammarKey(l Language, path string) string {
	if l == TypeScript && strings.EqualFold(filepath.Ext(path), ".tsx") {
		return grammarTSX
	}
	return string(l)
}

// Grammar returns the tree-sitter grammar registered under key. Dart has no
// grammar binding and reports false.
func Grammar(key string) (*sitter.Language, bool) {
	initGrammars()
	g, ok := grammars[key]
	return g, ok
}

// Package errs defines the error taxonomy shared by every stage of the
// analysis pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an analysis error.
type Kind int

const (
	Internal Kind = iota
	Io
	UnsupportedLanguage
	Parse
	Analysis
	Query
	Middleware
	Config
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case UnsupportedLanguage:
		return "unsupported_language"
	case Parse:
		return "parse"
	case Analysis:
		return "analysis"
	case Query:
		return "query"
	case Middleware:
		return "middleware"
	case Config:
		return "config"
	default:
		return "internal"
	}
}

// Error is a classified error. Path is empty when the failure is not tied
// to a single file (Config, Query).
type Error struct {
	Kind Kind
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind, the path it concerns and the failing operation.
func New(kind Kind, path, op string, err error) *Error {
	return &Error{Kind: kind, Path: path, Op: op, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal
// when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Fatal reports whether err must abort the constructing call rather than
// being recorded against a single file.
func Fatal(err error) bool {
	switch KindOf(err) {
	case Config, Query:
		return true
	}
	return false
}

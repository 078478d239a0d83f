// Package middleware defines the per-file hook stack the scanner drives
// around parsing and analysis, plus the canonical middlewares.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/syntax"
)

// Hook names, used in error ops and log records.
const (
	HookBeforeParse   = "before_parse"
	HookAfterParse    = "after_parse"
	HookBeforeAnalyze = "before_analyze"
	HookAfterAnalyze  = "after_analyze"
)

// Context is the per-file state shared by every hook of one pipeline pass.
type Context struct {
	Path     string
	Language lang.Language
	Content  []byte
	Hash     string

	start time.Time

	mu     sync.Mutex
	values map[string]any
	cached *model.CodeAnalysis
}

// NewContext starts the elapsed-time counter for one file pass.
func NewContext(path string, l lang.Language, content []byte, hash string) *Context {
	return &Context{
		Path:     path,
		Language: l,
		Content:  content,
		Hash:     hash,
		start:    time.Now(),
		values:   make(map[string]any),
	}
}

// Elapsed returns the time since the pass started.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.start)
}

// Set stores v under key in the context bag.
func (c *Context) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// UseCached supplies a ready analysis from before_parse. The driver then
// skips parsing and analysis and goes straight to after_analyze.
func (c *Context) UseCached(a *model.CodeAnalysis) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = a
}

// Cached returns the analysis supplied by UseCached, or nil.
func (c *Context) Cached() *model.CodeAnalysis {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

// Middleware observes or alters one file's pass. Any hook error aborts
// the pass for that file.
type Middleware interface {
	Name() string
	BeforeParse(ctx context.Context, c *Context) error
	AfterParse(ctx context.Context, c *Context, pf *syntax.ParsedFile) error
	BeforeAnalyze(ctx context.Context, c *Context) error
	AfterAnalyze(ctx context.Context, c *Context, a *model.CodeAnalysis) error
}

// FailureObserver is implemented by middleware that wants to see files
// whose pass failed, whatever the stage.
type FailureObserver interface {
	OnFailure(ctx context.Context, c *Context, err error)
}

// Base implements every hook as a no-op. Embed it to override only the
// hooks a middleware needs.
type Base struct{}

func (Base) BeforeParse(context.Context, *Context) error                       { return nil }
func (Base) AfterParse(context.Context, *Context, *syntax.ParsedFile) error    { return nil }
func (Base) BeforeAnalyze(context.Context, *Context) error                     { return nil }
func (Base) AfterAnalyze(context.Context, *Context, *model.CodeAnalysis) error { return nil }

// Stack runs middleware in insertion order. It is safe for concurrent
// passes once built.
type Stack struct {
	mws []Middleware
}

// NewStack builds a stack from mws in order.
func NewStack(mws ...Middleware) *Stack {
	s := &Stack{}
	for _, m := range mws {
		s.Use(m)
	}
	return s
}

// Use appends m. Nil middleware is ignored.
func (s *Stack) Use(m Middleware) {
	if m != nil {
		s.mws = append(s.mws, m)
	}
}

// Insert places m at position i, clamped to the stack bounds.
func (s *Stack) Insert(i int, m Middleware) {
	if m == nil {
		return
	}
	i = max(0, min(i, len(s.mws)))
	s.mws = append(s.mws, nil)
	copy(s.mws[i+1:], s.mws[i:])
	s.mws[i] = m
}

// Len returns the number of middleware.
func (s *Stack) Len() int {
	if s == nil {
		return 0
	}
	return len(s.mws)
}

// Names returns middleware names in run order.
func (s *Stack) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.mws))
	for i, m := range s.mws {
		out[i] = m.Name()
	}
	return out
}

// BeforeParse runs every before_parse hook.
func (s *Stack) BeforeParse(ctx context.Context, c *Context) error {
	return s.run(c, HookBeforeParse, func(m Middleware) error { return m.BeforeParse(ctx, c) })
}

// AfterParse runs every after_parse hook.
func (s *Stack) AfterParse(ctx context.Context, c *Context, pf *syntax.ParsedFile) error {
	return s.run(c, HookAfterParse, func(m Middleware) error { return m.AfterParse(ctx, c, pf) })
}

// BeforeAnalyze runs every before_analyze hook.
func (s *Stack) BeforeAnalyze(ctx context.Context, c *Context) error {
	return s.run(c, HookBeforeAnalyze, func(m Middleware) error { return m.BeforeAnalyze(ctx, c) })
}

// AfterAnalyze runs every after_analyze hook.
func (s *Stack) AfterAnalyze(ctx context.Context, c *Context, a *model.CodeAnalysis) error {
	return s.run(c, HookAfterAnalyze, func(m Middleware) error { return m.AfterAnalyze(ctx, c, a) })
}

// Failed notifies every FailureObserver that c's pass failed with err.
func (s *Stack) Failed(ctx context.Context, c *Context, err error) {
	if s == nil {
		return
	}
	for _, m := range s.mws {
		if o, ok := m.(FailureObserver); ok {
			o.OnFailure(ctx, c, err)
		}
	}
}

func (s *Stack) run(c *Context, hook string, call func(Middleware) error) error {
	if s == nil {
		return nil
	}
	for _, m := range s.mws {
		if err := call(m); err != nil {
			return wrap(c.Path, m.Name()+"."+hook, err)
		}
	}
	return nil
}

// wrap classifies hook errors as Middleware unless the hook already
// returned a classified error.
func wrap(path, op string, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	return errs.New(errs.Middleware, path, op, err)
}

// Funcs adapts plain functions to Middleware. Nil hooks are no-ops.
type Funcs struct {
	ID              string
	BeforeParseFn   func(ctx context.Context, c *Context) error
	AfterParseFn    func(ctx context.Context, c *Context, pf *syntax.ParsedFile) error
	BeforeAnalyzeFn func(ctx context.Context, c *Context) error
	AfterAnalyzeFn  func(ctx context.Context, c *Context, a *model.CodeAnalysis) error
}

func (f *Funcs) Name() string {
	if f.ID == "" {
		return fmt.Sprintf("funcs@%p", f)
	}
	return f.ID
}

func (f *Funcs) BeforeParse(ctx context.Context, c *Context) error {
	if f.BeforeParseFn == nil {
		return nil
	}
	return f.BeforeParseFn(ctx, c)
}

func (f *Funcs) AfterParse(ctx context.Context, c *Context, pf *syntax.ParsedFile) error {
	if f.AfterParseFn == nil {
		return nil
	}
	return f.AfterParseFn(ctx, c, pf)
}

func (f *Funcs) BeforeAnalyze(ctx context.Context, c *Context) error {
	if f.BeforeAnalyzeFn == nil {
		return nil
	}
	return f.BeforeAnalyzeFn(ctx, c)
}

func (f *Funcs) AfterAnalyze(ctx context.Context, c *Context, a *model.CodeAnalysis) error {
	if f.AfterAnalyzeFn == nil {
		return nil
	}
	return f.AfterAnalyzeFn(ctx, c, a)
}

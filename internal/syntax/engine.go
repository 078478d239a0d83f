// Package syntax turns source text into concrete syntax trees. Grammars come
// from tree-sitter; Dart, which has no binding, goes through a structural
// parser that produces nodes of the same shape.
package syntax

import (
	"context"
	"errors"
	"runtime"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/lang"
)

// ParsedFile is the result of a parse.
type ParsedFile struct {
	Path     string
	Language lang.Language
	Content  []byte
	Root     Node

	grammar string
	tree    *sitter.Tree
}

// GrammarKey names the grammar that produced the tree ("tsx" for TSX files).
func (p *ParsedFile) GrammarKey() string { return p.grammar }

// SitterRoot returns the tree-sitter root, or nil for structural trees.
func (p *ParsedFile) SitterRoot() *sitter.Node {
	if p.tree == nil {
		return nil
	}
	return p.tree.RootNode()
}

// Close releases the tree-sitter tree. Safe to call more than once.
func (p *ParsedFile) Close() {
	if p.tree != nil {
		p.tree.Close()
		p.tree = nil
	}
}

// Engine parses files, keeping a pool of parsers per grammar. A parser is
// held by exactly one caller between acquire and release.
type Engine struct {
	mu     sync.Mutex
	pools  map[string]chan *sitter.Parser
	size   int
	closed bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPoolSize bounds how many idle parsers are retained per grammar.
func WithPoolSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.size = n
		}
	}
}

// NewEngine creates a parse engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		pools: make(map[string]chan *sitter.Parser),
		size:  runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pool returns the idle-parser channel for key. The caller holds e.mu.
func (e *Engine) pool(key string) chan *sitter.Parser {
	p, ok := e.pools[key]
	if !ok {
		p = make(chan *sitter.Parser, e.size)
		e.pools[key] = p
	}
	return p
}

func (e *Engine) acquire(key string, grammar *sitter.Language) *sitter.Parser {
	e.mu.Lock()
	var p *sitter.Parser
	if !e.closed {
		select {
		case p = <-e.pool(key):
		default:
		}
	}
	e.mu.Unlock()
	if p == nil {
		p = sitter.NewParser()
		p.SetLanguage(grammar)
	}
	return p
}

// release returns p to its pool, or closes it when the pool is full or the
// engine is closed. The send happens under e.mu so Close cannot close the
// channel in between.
func (e *Engine) release(key string, p *sitter.Parser) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		select {
		case e.pool(key) <- p:
			return
		default:
		}
	}
	p.Close()
}

// Parse builds a syntax tree for content. path selects the TSX grammar and
// labels errors; it is not read.
func (e *Engine) Parse(ctx context.Context, path string, content []byte, l lang.Language) (*ParsedFile, error) {
	if l == lang.Dart {
		root, err := parseDart(content)
		if err != nil {
			return nil, errs.New(errs.Parse, path, "parse", err)
		}
		return &ParsedFile{Path: path, Language: l, Content: content, Root: root, grammar: string(l)}, nil
	}

	key := lang.GrammarKey(l, path)
	grammar, ok := lang.Grammar(key)
	if !ok {
		return nil, errs.New(errs.UnsupportedLanguage, path, "parse", errors.New("no grammar for "+string(l)))
	}

	p := e.acquire(key, grammar)
	tree, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		// A cancelled parser keeps partial state; drop it instead of pooling.
		p.Close()
		return nil, errs.New(errs.Parse, path, "parse", err)
	}
	e.release(key, p)
	if tree == nil || tree.RootNode() == nil {
		return nil, errs.New(errs.Parse, path, "parse", errors.New("parser produced no tree"))
	}

	return &ParsedFile{
		Path:     path,
		Language: l,
		Content:  content,
		Root:     Wrap(tree.RootNode()),
		grammar:  key,
		tree:     tree,
	}, nil
}

// Close releases every pooled parser. Parsers still in use are closed when
// they are released. Parse keeps working after Close without pooling.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for key, ch := range e.pools {
		close(ch)
		for p := range ch {
			p.Close()
		}
		delete(e.pools, key)
	}
}

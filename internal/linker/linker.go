// Package linker is the two-pass project analyzer. Pass one declares every
// file's symbols in a shared table; pass two rewrites each relationship's
// bare target through the resolution chain.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/resolve"
	"github.com/jward/agentmap/internal/symtab"
)

var tracer = otel.Tracer("agentmap.linker")

// Linker owns the project symbol table and resolves relationships against
// it.
type Linker struct {
	table   *symtab.Table
	chain   *resolve.Chain
	policy  Policy
	logger  *slog.Logger
	workers int
}

// Option configures a Linker.
type Option func(*Linker)

// WithPolicy sets what happens to relationships no strategy resolves.
func WithPolicy(p Policy) Option {
	return func(l *Linker) { l.policy = p }
}

// WithLogger sets the logger ambiguous resolutions are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Linker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithChain replaces the default resolution chain.
func WithChain(c *resolve.Chain) Option {
	return func(l *Linker) {
		if c != nil {
			l.chain = c
		}
	}
}

// WithWorkers caps pass-two parallelism. Zero or less means one worker per
// CPU.
func WithWorkers(n int) Option {
	return func(l *Linker) { l.workers = n }
}

// New returns a linker with an empty table, the default chain and the Keep
// policy.
func New(opts ...Option) *Linker {
	l := &Linker{
		table:  symtab.New(),
		chain:  resolve.DefaultChain(resolve.DefaultFuzzyThreshold),
		policy: Keep,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(l)
	}
	if l.workers <= 0 {
		l.workers = runtime.GOMAXPROCS(0)
	}
	return l
}

// Table returns the project symbol table.
func (l *Linker) Table() *symtab.Table { return l.table }

// Declare is pass one: it registers the symbols of analyses, replacing any
// earlier declarations of the same files.
func (l *Linker) Declare(analyses []*model.CodeAnalysis) {
	for _, a := range analyses {
		if a == nil {
			continue
		}
		l.table.RemoveFile(a.Path)
		l.table.Load(a)
	}
}

// Link runs both passes over analyses.
func (l *Linker) Link(ctx context.Context, analyses []*model.CodeAnalysis) (*ProjectResolution, error) {
	l.Declare(analyses)
	return l.Resolve(ctx, analyses)
}

// Resolve is pass two. Relationships of analyses are rewritten in place;
// targets already carrying a resolution are left alone, so running it twice
// changes nothing. The table is only read, so files resolve in parallel.
func (l *Linker) Resolve(ctx context.Context, analyses []*model.CodeAnalysis) (res *ProjectResolution, err error) {
	ctx, span := tracer.Start(ctx, "Linker.Resolve", trace.WithAttributes(
		attribute.Int("linker.files", len(analyses)),
		attribute.String("linker.policy", l.policy.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("linker.resolved", len(res.Resolved)),
				attribute.Int("linker.ambiguous", len(res.Ambiguous)),
				attribute.Int("linker.unresolved", len(res.Unresolved)),
				attribute.Int("linker.external", len(res.External)),
			)
		}
		span.End()
	}()

	parts := make([]ProjectResolution, len(analyses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, a := range analyses {
		if a == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[i] = l.resolveFile(a)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("linker: resolve: %w", err)
	}

	res = &ProjectResolution{}
	for _, p := range parts {
		res.merge(p)
	}
	return res, nil
}

// done reports whether a relationship needs no resolution.
func done(r *model.Relationship) bool {
	return r.Resolution() != "" || r.To.IsResolved() || r.To.IsFlagged()
}

func (l *Linker) resolveFile(a *model.CodeAnalysis) ProjectResolution {
	var out ProjectResolution
	c := resolve.NewContext(l.table, a)
	kept := a.Relationships[:0]
	for _, rel := range a.Relationships {
		if done(&rel) {
			kept = append(kept, rel)
			continue
		}
		name := string(rel.To)
		var o resolve.Outcome
		switch rel.Kind {
		case model.RelImports, model.RelReExports:
			source := rel.Properties[model.PropQualifier]
			o = resolve.ResolveImport(c, source, strings.TrimPrefix(name, source+"::"))
		default:
			o = l.chain.Resolve(c, resolve.Request{
				Name:      name,
				Kind:      rel.Kind,
				From:      rel.From,
				Qualifier: rel.Properties[model.PropQualifier],
			})
		}

		ref := Reference{File: a.Path, From: rel.From, Name: name, Kind: rel.Kind, Strategy: o.Strategy}
		switch o.Kind {
		case resolve.Resolved:
			rel.To = o.ID
			out.Resolved = append(out.Resolved, ref.to(rel.To))
		case resolve.Ambiguous:
			rel.To = o.Target()
			rel.Confidence = math.Min(rel.Confidence, model.AmbiguousConfidence)
			rel.SetProperty(model.PropCandidates, joinIDs(o.Candidates))
			ref.Candidates = o.Candidates
			out.Ambiguous = append(out.Ambiguous, ref.to(rel.To))
			l.logger.Debug("ambiguous reference",
				"file", a.Path,
				"name", name,
				"picked", string(rel.To),
				"candidates", len(o.Candidates),
				"strategy", o.Strategy,
			)
		case resolve.External:
			rel.To = o.Target()
			out.External = append(out.External, ref.to(rel.To))
		default:
			switch l.policy {
			case Remove:
				out.Unresolved = append(out.Unresolved, ref.to(""))
				continue
			case Flag:
				rel.To = model.Flagged(name)
			}
			out.Unresolved = append(out.Unresolved, ref.to(rel.To))
		}
		rel.SetProperty(model.PropResolution, o.Kind.String())
		if o.Strategy != "" && o.Kind != resolve.Unresolved {
			rel.SetProperty(model.PropStrategy, o.Strategy)
		}
		kept = append(kept, rel)
	}
	a.Relationships = kept
	return out
}

func joinIDs(ids []model.SymbolID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}
	return strings.Join(s, ",")
}

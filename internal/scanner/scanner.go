// Package scanner discovers source files and drives each one through the
// middleware, parse and extract pipeline on a bounded worker pool.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/extract"
	"github.com/jward/agentmap/internal/hasher"
	"github.com/jward/agentmap/internal/middleware"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/syntax"
	"github.com/jward/agentmap/internal/telemetry"
)

var tracer = otel.Tracer("agentmap.scanner")

// FileError is a failure confined to one file.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e FileError) Unwrap() error { return e.Err }

// Result is the outcome of one scan.
type Result struct {
	RunID      string
	Analyses   []*model.CodeAnalysis
	Errors     []FileError
	Skipped    int
	TotalFiles int
	ElapsedMs  int64
}

// Summary is a one-line description of r.
func (r *Result) Summary() string {
	return fmt.Sprintf("%d files: %d analyzed, %d skipped, %d failed in %dms",
		r.TotalFiles, len(r.Analyses), r.Skipped, len(r.Errors), r.ElapsedMs)
}

// Err joins the per-file errors, or returns nil when there are none.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	all := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		all[i] = e
	}
	return errors.Join(all...)
}

// Scanner runs file pipelines. It is safe for concurrent scans; incremental
// state lives in its Hasher.
type Scanner struct {
	engine    *syntax.Engine
	extractor *extract.Extractor
	hasher    *hasher.Hasher
	stack     *middleware.Stack
	logger    *slog.Logger
	out       io.Writer
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithHasher shares incremental state with other components.
func WithHasher(h *hasher.Hasher) Option {
	return func(s *Scanner) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithMiddleware sets the hook stack run around every file.
func WithMiddleware(stack *middleware.Stack) Option {
	return func(s *Scanner) {
		s.stack = stack
	}
}

// WithLogger sets the scanner logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = telemetry.OrDiscard(l)
	}
}

// WithProgressOutput sets where progress is rendered. The default is
// stderr.
func WithProgressOutput(w io.Writer) Option {
	return func(s *Scanner) {
		s.out = w
	}
}

// New creates a scanner over a shared syntax engine and extractor.
func New(engine *syntax.Engine, extractor *extract.Extractor, opts ...Option) *Scanner {
	s := &Scanner{
		engine:    engine,
		extractor: extractor,
		hasher:    hasher.New(),
		stack:     middleware.NewStack(),
		logger:    telemetry.Discard(),
		out:       os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hasher returns the incremental state.
func (s *Scanner) Hasher() *hasher.Hasher { return s.hasher }

type fileResult struct {
	analysis *model.CodeAnalysis
	skipped  bool
	err      error
}

// Scan discovers files under paths and analyzes them. Per-file failures
// land in Result.Errors. Discovery failures and invalid exclude patterns
// return an error. On cancellation the files finished so far are returned
// together with the context error.
func (s *Scanner) Scan(ctx context.Context, cfg Config, paths ...string) (res *Result, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Scanner.Scan", trace.WithAttributes(
		attribute.Int("scan.roots", len(paths)),
		attribute.Bool("scan.incremental", cfg.Incremental),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	cands, err := discover(cfg, paths)
	if err != nil {
		return nil, err
	}

	res = &Result{RunID: uuid.NewString(), TotalFiles: len(cands)}
	span.SetAttributes(attribute.String("scan.run_id", res.RunID), attribute.Int("scan.files", len(cands)))
	logger := s.logger.With("run_id", res.RunID)
	logger.Info("scan started", "files", len(cands), "incremental", cfg.Incremental)

	rep := newReporter(cfg.Progress, s.out)
	rep.start(len(cands))

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	results := make([]fileResult, len(cands))
	done := make([]bool, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, c := range cands {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := s.processFile(gctx, cfg, c)
			if r.err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = r
			done[i] = true
			switch {
			case r.err != nil:
				rep.file(c.Rel, outcomeFailed, r.err)
			case r.skipped:
				rep.file(c.Rel, outcomeSkipped, nil)
			default:
				rep.file(c.Rel, outcomeAnalyzed, nil)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	for i, r := range results {
		if !done[i] {
			continue
		}
		switch {
		case r.err != nil:
			res.Errors = append(res.Errors, FileError{Path: cands[i].Rel, Err: r.err})
		case r.skipped:
			res.Skipped++
		case r.analysis != nil:
			res.Analyses = append(res.Analyses, r.analysis)
		}
	}
	sort.Slice(res.Analyses, func(i, j int) bool { return res.Analyses[i].Path < res.Analyses[j].Path })
	res.ElapsedMs = time.Since(start).Milliseconds()
	rep.finish(res)

	logger.Info("scan finished",
		"analyzed", len(res.Analyses),
		"skipped", res.Skipped,
		"failed", len(res.Errors),
		"elapsed_ms", res.ElapsedMs,
	)
	span.SetAttributes(
		attribute.Int("scan.analyzed", len(res.Analyses)),
		attribute.Int("scan.skipped", res.Skipped),
		attribute.Int("scan.failed", len(res.Errors)),
	)

	if waitErr != nil {
		return res, waitErr
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// processFile runs one file's pipeline. Panics become Internal errors for
// the file so the pool keeps running.
func (s *Scanner) processFile(ctx context.Context, cfg Config, c candidate) (r fileResult) {
	if c.Err != nil {
		return fileResult{err: c.Err}
	}

	ctx, span := tracer.Start(ctx, "Scanner.processFile", trace.WithAttributes(
		attribute.String("file.path", c.Rel),
		attribute.String("file.language", c.Language.String()),
	))
	defer func() { telemetry.EndSpan(span, r.err) }()
	logger := telemetry.LoggerWithFile(ctx, s.logger, c.Rel)

	defer func() {
		if rec := recover(); rec != nil {
			r = fileResult{err: errs.New(errs.Internal, c.Rel, "scan", fmt.Errorf("panic: %v", rec))}
		}
	}()

	if cfg.MaxFileSize > 0 && c.Size > cfg.MaxFileSize {
		logger.Debug("file too large", "bytes", c.Size, "max", cfg.MaxFileSize)
		return fileResult{skipped: true}
	}
	content, err := os.ReadFile(c.Abs)
	if err != nil {
		return fileResult{err: errs.New(errs.Io, c.Rel, "read", err)}
	}
	if cfg.MaxFileSize > 0 && int64(len(content)) > cfg.MaxFileSize {
		return fileResult{skipped: true}
	}
	if cfg.Incremental && !s.hasher.HasChanged(c.Rel, content) {
		logger.Debug("file unchanged")
		return fileResult{skipped: true}
	}
	sum := hasher.Hash(content)

	mc := middleware.NewContext(c.Rel, c.Language, content, sum)
	a, err := s.pipeline(ctx, mc)
	if err != nil {
		s.stack.Failed(ctx, mc, err)
		return fileResult{err: err}
	}
	s.hasher.Record(c.Rel, sum)
	return fileResult{analysis: a}
}

// pipeline runs the hooks, parse and analysis in their fixed order. A
// cached analysis from before_parse replaces parse and analysis.
func (s *Scanner) pipeline(ctx context.Context, mc *middleware.Context) (*model.CodeAnalysis, error) {
	if err := s.stack.BeforeParse(ctx, mc); err != nil {
		return nil, err
	}

	a := mc.Cached()
	if a == nil {
		pf, err := s.engine.Parse(ctx, mc.Path, mc.Content, mc.Language)
		if err != nil {
			return nil, err
		}
		defer pf.Close()
		if err := s.stack.AfterParse(ctx, mc, pf); err != nil {
			return nil, err
		}
		if err := s.stack.BeforeAnalyze(ctx, mc); err != nil {
			return nil, err
		}
		a, err = s.extractor.Analyze(pf)
		if err != nil {
			return nil, err
		}
	}

	if err := s.stack.AfterAnalyze(ctx, mc, a); err != nil {
		return nil, err
	}
	return a, nil
}

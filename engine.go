package agentmap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jward/agentmap/internal/config"
	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/extract"
	"github.com/jward/agentmap/internal/hasher"
	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/linker"
	"github.com/jward/agentmap/internal/middleware"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/queries"
	"github.com/jward/agentmap/internal/scanner"
	"github.com/jward/agentmap/internal/store"
	"github.com/jward/agentmap/internal/syntax"
	"github.com/jward/agentmap/internal/telemetry"
)

// Engine orchestrates the agentmap pipeline: discovery, per-file analysis,
// project resolution and query access.
type Engine struct {
	store   *store.Store
	syntax  *syntax.Engine
	scanner *scanner.Scanner
	cfg     *config.Config
	logger  *slog.Logger

	queriesDir  string
	stack       *middleware.Stack
	registerer  prometheus.Registerer
	incremental bool
	threads     int
	progress    scanner.ProgressStyle
	progressOut io.Writer
	policy      *linker.Policy

	mu sync.Mutex
	// project holds the latest extraction output per path, before
	// resolution.
	project  map[string]*model.CodeAnalysis
	resolved []*model.CodeAnalysis
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig applies a loaded configuration file. The default is
// config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithQueriesDir overrides embedded query packs with <dir>/<language>/*.scm
// files where present.
func WithQueriesDir(dir string) Option {
	return func(e *Engine) {
		e.queriesDir = dir
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = telemetry.OrDiscard(l)
	}
}

// WithMiddleware replaces the stack the configuration would build.
func WithMiddleware(stack *middleware.Stack) Option {
	return func(e *Engine) {
		e.stack = stack
	}
}

// WithRegisterer sets where the metrics middleware registers its collectors.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithIncremental skips files whose content hash is unchanged since the
// last recorded analysis.
func WithIncremental(on bool) Option {
	return func(e *Engine) {
		e.incremental = on
	}
}

// WithThreads bounds concurrent file pipelines. Zero is one per core.
func WithThreads(n int) Option {
	return func(e *Engine) {
		e.threads = n
	}
}

// WithProgress renders scan progress in style to w.
func WithProgress(style scanner.ProgressStyle, w io.Writer) Option {
	return func(e *Engine) {
		e.progress = style
		e.progressOut = w
	}
}

// WithPolicy overrides the configured unresolved-reference policy.
func WithPolicy(p linker.Policy) Option {
	return func(e *Engine) {
		e.policy = &p
	}
}

// New creates an Engine backed by a SQLite database at dbPath. Query packs
// are compiled up front, so a malformed pack fails here.
func New(dbPath string, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:      telemetry.Discard(),
		progressOut: os.Stderr,
		project:     make(map[string]*model.CodeAnalysis),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg == nil {
		e.cfg = config.Default()
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	provider := queries.DefaultProvider(e.queriesDir)
	reg := queries.NewRegistry(provider, 0)
	if err := reg.Preload(lang.All()...); err != nil {
		return nil, fmt.Errorf("agentmap: load queries: %w", err)
	}
	fingerprint, err := queries.Fingerprint(provider)
	if err != nil {
		return nil, fmt.Errorf("agentmap: fingerprint queries: %w", err)
	}

	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("agentmap: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("agentmap: migrate: %w", err)
	}
	e.store = s

	h, err := e.restoreHashes(fingerprint)
	if err != nil {
		s.Close()
		return nil, err
	}

	if e.stack == nil {
		e.stack, err = e.cfg.Stack(config.Deps{
			Logger:     e.logger,
			Backend:    s,
			Registerer: e.registerer,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	e.syntax = syntax.NewEngine()
	e.scanner = scanner.New(e.syntax, extract.New(reg, extract.WithLogger(e.logger)),
		scanner.WithHasher(h),
		scanner.WithMiddleware(e.stack),
		scanner.WithLogger(e.logger),
		scanner.WithProgressOutput(e.progressOut),
	)
	return e, nil
}

// restoreHashes seeds incremental state from the stored manifest. A changed
// query fingerprint invalidates both the cached analyses and the manifest.
func (e *Engine) restoreHashes(fingerprint string) (*hasher.Hasher, error) {
	h := hasher.New()
	changed, err := e.store.SyncFingerprint(fingerprint)
	if err != nil {
		return nil, fmt.Errorf("agentmap: sync query fingerprint: %w", err)
	}
	if changed {
		e.logger.Info("query packs changed; cached analyses dropped", "fingerprint", fingerprint)
		return h, nil
	}
	m, err := e.store.LoadManifest()
	if err != nil {
		return nil, fmt.Errorf("agentmap: load manifest: %w", err)
	}
	h.Import(m)
	return h, nil
}

// Close releases parsers and the database.
func (e *Engine) Close() error {
	e.syntax.Close()
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Middleware returns the stack run around every file. Custom middleware
// inserted before the first scan takes part in it.
func (e *Engine) Middleware() *middleware.Stack {
	return e.stack
}

func (e *Engine) scanConfig() scanner.Config {
	sc := e.cfg.ScanConfig()
	sc.Incremental = e.incremental
	sc.Threads = e.threads
	sc.Progress = e.progress
	return sc
}

func (e *Engine) scan(ctx context.Context, sc scanner.Config, paths ...string) (*ScanResult, error) {
	res, err := e.scanner.Scan(ctx, sc, paths...)
	if res != nil {
		e.mu.Lock()
		for _, a := range res.Analyses {
			e.project[a.Path] = a
		}
		e.resolved = nil
		e.mu.Unlock()
	}
	return res, err
}

// AnalyzeFile analyzes a single file, regardless of incremental state.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (*CodeAnalysis, error) {
	sc := e.scanConfig()
	sc.Incremental = false
	sc.Progress = scanner.Silent
	res, err := e.scan(ctx, sc, path)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, res.Errors[0].Err
	}
	if len(res.Analyses) == 0 {
		return nil, errs.Newf(errs.Io, path, "skipped: larger than %d bytes", sc.MaxFileSize)
	}
	return res.Analyses[0], nil
}

// AnalyzeDirectory scans root. Per-file failures are reported in the
// result rather than returned.
func (e *Engine) AnalyzeDirectory(ctx context.Context, root string) (*ScanResult, error) {
	return e.scan(ctx, e.scanConfig(), root)
}

// Analyze scans files and directories together. Explicit files under base
// are keyed relative to it.
func (e *Engine) Analyze(ctx context.Context, base string, paths ...string) (*ScanResult, error) {
	sc := e.scanConfig()
	sc.BaseDir = base
	return e.scan(ctx, sc, paths...)
}

// Forget drops paths from the project, the incremental state and the
// stored graph.
func (e *Engine) Forget(paths ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range paths {
		delete(e.project, p)
		e.scanner.Hasher().Forget(p)
		if err := e.store.DeleteFileData(p); err != nil {
			return fmt.Errorf("agentmap: forget %s: %w", p, err)
		}
	}
	e.resolved = nil
	return nil
}

// Resolve links every analysis in the project and persists the resolved
// graph and manifest. Files skipped by an incremental scan are restored
// from the analysis cache.
func (e *Engine) Resolve(ctx context.Context) (*ProjectResolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.restoreCached()

	analyses := make([]*model.CodeAnalysis, 0, len(e.project))
	for _, a := range e.project {
		analyses = append(analyses, a.Clone())
	}
	sort.Slice(analyses, func(i, j int) bool { return analyses[i].Path < analyses[j].Path })

	l := linker.New(linker.WithPolicy(e.currentPolicy()), linker.WithLogger(e.logger), linker.WithWorkers(e.threads))
	res, err := l.Link(ctx, analyses)
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveGraph(analyses); err != nil {
		return nil, fmt.Errorf("agentmap: save graph: %w", err)
	}
	if err := e.store.SaveManifest(e.scanner.Hasher().Export()); err != nil {
		return nil, fmt.Errorf("agentmap: save manifest: %w", err)
	}
	e.resolved = analyses
	e.logger.Info("project resolved",
		"files", len(analyses),
		"resolved", res.ResolvedCount(),
		"ambiguous", res.AmbiguousCount(),
		"external", res.ExternalCount(),
		"unresolved", res.UnresolvedCount(),
	)
	return res, nil
}

// restoreCached loads analyses for recorded paths missing from the project.
// A path with no cached analysis is forgotten so the next scan redoes it.
func (e *Engine) restoreCached() {
	h := e.scanner.Hasher()
	for path, sum := range h.Export() {
		if _, ok := e.project[path]; ok {
			continue
		}
		a, ok, err := e.store.GetAnalysis(path, sum)
		if err != nil {
			e.logger.Warn("cached analysis unreadable", "path", path, "error", err)
		}
		if !ok {
			h.Forget(path)
			continue
		}
		e.project[path] = a
	}
}

func (e *Engine) currentPolicy() linker.Policy {
	if e.policy != nil {
		return *e.policy
	}
	return e.cfg.Policy()
}

// Analyses returns the project's analyses sorted by path: resolved when
// Resolve has run since the last scan, otherwise as extracted.
func (e *Engine) Analyses() []*CodeAnalysis {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resolved != nil {
		return append([]*model.CodeAnalysis(nil), e.resolved...)
	}
	out := make([]*model.CodeAnalysis, 0, len(e.project))
	for _, a := range e.project {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Query returns a QueryBuilder over the persisted graph.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/script"
	"github.com/jward/agentmap/internal/store"
)

func testContext() *Context {
	return NewContext("src/main.rs", lang.Rust, []byte("fn main() {}\n"), "0123456789abcdef")
}

func testAnalysis() *model.CodeAnalysis {
	id := model.NewSymbolID("src/main.rs", 1, "main")
	return &model.CodeAnalysis{
		Path:     "src/main.rs",
		Language: lang.Rust,
		Symbols: []model.Symbol{{ID: id, Name: "main", Kind: model.KindFunction,
			Location: model.SourceLocation{File: "src/main.rs", StartLine: 1, EndLine: 1}}},
		Relationships: []model.Relationship{{From: id, To: model.BareRef("helper"), Kind: model.RelCalls, Confidence: 1}},
		Metadata:      model.Metadata{LineCount: 1, ContentHash: "0123456789abcdef"},
	}
}

// recorder appends "<name>.<hook>" to a shared trace.
func recorder(name string, trace *[]string) *Funcs {
	return &Funcs{
		ID: name,
		BeforeParseFn: func(context.Context, *Context) error {
			*trace = append(*trace, name+".before_parse")
			return nil
		},
		AfterAnalyzeFn: func(context.Context, *Context, *model.CodeAnalysis) error {
			*trace = append(*trace, name+".after_analyze")
			return nil
		},
	}
}

// =============================================================================
// Stack
// =============================================================================

func TestStack_RunsInInsertionOrder(t *testing.T) {
	t.Parallel()
	var trace []string
	s := NewStack(recorder("a", &trace), recorder("c", &trace))
	s.Insert(1, recorder("b", &trace))
	s.Insert(-5, recorder("first", &trace))
	s.Insert(99, recorder("last", &trace))
	s.Use(nil)

	assert.Equal(t, []string{"first", "a", "b", "c", "last"}, s.Names())
	ctx := context.Background()
	c := testContext()
	require.NoError(t, s.BeforeParse(ctx, c))
	require.NoError(t, s.AfterParse(ctx, c, nil))
	require.NoError(t, s.BeforeAnalyze(ctx, c))
	require.NoError(t, s.AfterAnalyze(ctx, c, testAnalysis()))

	assert.Equal(t, []string{
		"first.before_parse", "a.before_parse", "b.before_parse", "c.before_parse", "last.before_parse",
		"first.after_analyze", "a.after_analyze", "b.after_analyze", "c.after_analyze", "last.after_analyze",
	}, trace)
}

func TestStack_ErrorStopsAndIsClassified(t *testing.T) {
	t.Parallel()
	var trace []string
	failing := &Funcs{ID: "gate", BeforeParseFn: func(context.Context, *Context) error {
		return errors.New("nope")
	}}
	s := NewStack(recorder("a", &trace), failing, recorder("b", &trace))

	err := s.BeforeParse(context.Background(), testContext())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Middleware))
	assert.Contains(t, err.Error(), "gate.before_parse")
	assert.Contains(t, err.Error(), "src/main.rs")
	assert.Equal(t, []string{"a.before_parse"}, trace)
}

func TestStack_KeepsClassifiedErrors(t *testing.T) {
	t.Parallel()
	s := NewStack(&Funcs{ID: "io", BeforeAnalyzeFn: func(_ context.Context, c *Context) error {
		return errs.New(errs.Io, c.Path, "read", errors.New("gone"))
	}})
	err := s.BeforeAnalyze(context.Background(), testContext())
	assert.True(t, errs.Is(err, errs.Io))
}

func TestStack_NilIsEmpty(t *testing.T) {
	t.Parallel()
	var s *Stack
	assert.Zero(t, s.Len())
	require.NoError(t, s.BeforeParse(context.Background(), testContext()))
	s.Failed(context.Background(), testContext(), errors.New("x"))
}

func TestContext_Bag(t *testing.T) {
	t.Parallel()
	c := testContext()
	_, ok := c.Get("k")
	assert.False(t, ok)
	c.Set("k", 3)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Nil(t, c.Cached())
	assert.GreaterOrEqual(t, c.Elapsed().Nanoseconds(), int64(0))
}

// =============================================================================
// Logging
// =============================================================================

func TestLogging(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewStack(NewLogging(logger, slog.LevelInfo))
	ctx := context.Background()
	c := testContext()

	require.NoError(t, s.BeforeParse(ctx, c))
	require.NoError(t, s.AfterAnalyze(ctx, c, testAnalysis()))
	s.Failed(ctx, c, errors.New("parse exploded"))

	out := buf.String()
	assert.Contains(t, out, "file pass started")
	assert.Contains(t, out, "level=INFO msg=\"file analyzed\"")
	assert.Contains(t, out, "symbols=1")
	assert.Contains(t, out, "level=WARN msg=\"file pass failed\"")
	assert.Contains(t, out, "parse exploded")
}

// =============================================================================
// Metrics
// =============================================================================

func TestMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := NewStack(m)
	ctx := context.Background()

	c := testContext()
	require.NoError(t, s.BeforeParse(ctx, c))
	require.NoError(t, s.AfterParse(ctx, c, nil))
	require.NoError(t, s.AfterAnalyze(ctx, c, testAnalysis()))

	cached := testContext()
	cached.UseCached(testAnalysis())
	require.NoError(t, s.AfterAnalyze(ctx, cached, cached.Cached()))

	s.Failed(ctx, testContext(), errs.New(errs.Parse, "src/main.rs", "parse", errors.New("bad")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("rust", "analyzed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("rust", "cached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("rust", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("parse")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.symbols))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.relationships))

	expected := `
# HELP agentmap_scan_symbols_total Symbols extracted
# TYPE agentmap_scan_symbols_total counter
agentmap_scan_symbols_total 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "agentmap_scan_symbols_total"))
}

// =============================================================================
// Cache
// =============================================================================

func runCached(t *testing.T, backend Backend) {
	t.Helper()
	s := NewStack(NewCache(backend))
	ctx := context.Background()

	first := testContext()
	require.NoError(t, s.BeforeParse(ctx, first))
	require.Nil(t, first.Cached(), "cold cache")
	require.NoError(t, s.AfterAnalyze(ctx, first, testAnalysis()))

	second := testContext()
	require.NoError(t, s.BeforeParse(ctx, second))
	got := second.Cached()
	require.NotNil(t, got)
	assert.Equal(t, "src/main.rs", got.Path)
	assert.Len(t, got.Symbols, 1)

	changed := NewContext("src/main.rs", lang.Rust, []byte("fn main() { x() }\n"), "fedcba9876543210")
	require.NoError(t, s.BeforeParse(ctx, changed))
	assert.Nil(t, changed.Cached(), "new content misses")
}

func TestCache_MemoryBackend(t *testing.T) {
	t.Parallel()
	b := NewMemoryBackend(8)
	runCached(t, b)

	// Mutating a returned analysis does not leak into the cache.
	a, ok, err := b.GetAnalysis("src/main.rs", "0123456789abcdef")
	require.NoError(t, err)
	require.True(t, ok)
	a.Relationships[0].To = "mutated"
	again, _, _ := b.GetAnalysis("src/main.rs", "0123456789abcdef")
	assert.Equal(t, model.BareRef("helper"), again.Relationships[0].To)

	st := b.Stats()
	assert.Equal(t, int64(3), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
}

func TestCache_StoreBackend(t *testing.T) {
	t.Parallel()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())

	runCached(t, s)
}

// =============================================================================
// Script
// =============================================================================

func TestScript_AnnotatesAndRejects(t *testing.T) {
	t.Parallel()
	rt := script.NewRuntime()
	ctx := context.Background()

	annotate := NewScriptSource(rt, "annotate", `set_property("symbols", len(symbols))`)
	a := testAnalysis()
	require.NoError(t, NewStack(annotate).AfterAnalyze(ctx, testContext(), a))
	assert.Equal(t, "1", a.Metadata.Properties["symbols"])

	gate := NewScriptSource(rt, "gate", `if path == "src/main.rs" { reject("entry points are generated") }`)
	err := NewStack(gate).AfterAnalyze(ctx, testContext(), testAnalysis())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Middleware))
	assert.Contains(t, err.Error(), "entry points are generated")
	assert.Equal(t, "script:gate", gate.Name())
}

func TestScript_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewScript(script.NewRuntime(script.WithDir(t.TempDir())), "missing.risor")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Config))
}

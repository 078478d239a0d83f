package agentmap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/agentmap/internal/config"
	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/middleware"
	"github.com/jward/agentmap/internal/model"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func newTestEngine(t *testing.T, dbPath string, opts ...Option) *Engine {
	t.Helper()
	if dbPath == "" {
		dbPath = filepath.Join(t.TempDir(), "agentmap.db")
	}
	opts = append([]Option{WithRegisterer(prometheus.NewRegistry())}, opts...)
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func analysisFor(t *testing.T, analyses []*CodeAnalysis, path string) *CodeAnalysis {
	t.Helper()
	for _, a := range analyses {
		if a.Path == path {
			return a
		}
	}
	t.Fatalf("no analysis for %s", path)
	return nil
}

func symbolNamed(t *testing.T, a *CodeAnalysis, name string) Symbol {
	t.Helper()
	for _, s := range a.Symbols {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("symbol %q not found in %s", name, a.Path)
	return Symbol{}
}

func targetNames(a *CodeAnalysis, kind model.RelationshipKind) []string {
	var out []string
	for _, r := range a.Relationships {
		if r.Kind == kind {
			out = append(out, r.To.Name())
		}
	}
	return out
}

func TestEngine_RustCallExtraction(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"test.rs": "fn main() { let r = process_data(); handle_result(r); }\nfn process_data() -> i32 { calculate_value() }\n",
	})
	e := newTestEngine(t, "")

	a, err := e.AnalyzeFile(context.Background(), filepath.Join(root, "test.rs"))
	require.NoError(t, err)

	symbolNamed(t, a, "main")
	symbolNamed(t, a, "process_data")
	called := targetNames(a, model.RelCalls)
	assert.Contains(t, called, "process_data")
	assert.Contains(t, called, "handle_result")
	assert.Contains(t, called, "calculate_value")
	assert.NotContains(t, called, "println")
}

func TestEngine_PythonClassAndUses(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"test.py": "class Person:\n    def __init__(self, name): self.name = name\ndef greet(p): return p.name\n",
	})
	e := newTestEngine(t, "")

	a, err := e.AnalyzeFile(context.Background(), filepath.Join(root, "test.py"))
	require.NoError(t, err)

	person := symbolNamed(t, a, "Person")
	assert.Equal(t, model.KindClass, person.Kind)
	assert.Equal(t, model.Public, person.Visibility)

	var uses []string
	for _, r := range a.Relationships {
		if r.Kind == model.RelUses {
			uses = append(uses, string(r.To))
		}
	}
	found := false
	for _, u := range uses {
		if strings.Contains(u, "p.name") {
			found = true
		}
		assert.NotContains(t, u, "self.name")
	}
	assert.True(t, found, "uses: %v", uses)
}

func TestEngine_TypeScriptVisibility(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"mod.ts": "export function foo() {}\nfunction bar() {}",
	})
	e := newTestEngine(t, "")

	res, err := e.AnalyzeDirectory(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, res.Analyses, 1)

	a := res.Analyses[0]
	assert.Equal(t, "mod.ts", a.Path)
	assert.Equal(t, model.Public, symbolNamed(t, a, "foo").Visibility)
	assert.Equal(t, model.Private, symbolNamed(t, a, "bar").Visibility)
}

func TestEngine_CrossFileResolution(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"models/user.py":  "class User:\n    pass\n",
		"services/svc.py": "from models.user import User\ndef f(): return User()",
	})
	e := newTestEngine(t, "")
	ctx := context.Background()

	_, err := e.AnalyzeDirectory(ctx, root)
	require.NoError(t, err)
	res, err := e.Resolve(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.ResolvedCount(), 1)

	svc := analysisFor(t, e.Analyses(), "services/svc.py")
	f := symbolNamed(t, svc, "f")
	var to []SymbolID
	for _, r := range svc.Relationships {
		if r.From == f.ID && (r.Kind == model.RelCalls || r.Kind == model.RelInstantiates) {
			to = append(to, r.To)
		}
	}
	assert.Contains(t, to, SymbolID("models/user.py:1:User"))
}

func TestEngine_IncrementalNoOp(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"a.rs": "fn a() {}\n",
		"b.rs": "fn b() { a(); }\n",
		"c.rs": "fn c() {}\n",
	})
	e := newTestEngine(t, "", WithIncremental(true))
	ctx := context.Background()

	first, err := e.AnalyzeDirectory(ctx, root)
	require.NoError(t, err)
	assert.Len(t, first.Analyses, 3)
	assert.Zero(t, first.Skipped)

	second, err := e.AnalyzeDirectory(ctx, root)
	require.NoError(t, err)
	assert.Empty(t, second.Analyses)
	assert.Equal(t, 3, second.Skipped)
}

func TestEngine_IncrementalAcrossRuns(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"models/user.py":  "class User:\n    pass\n",
		"services/svc.py": "from models.user import User\ndef f(): return User()",
	})
	dbPath := filepath.Join(t.TempDir(), "agentmap.db")
	ctx := context.Background()

	first, err := New(dbPath, WithIncremental(true))
	require.NoError(t, err)
	_, err = first.AnalyzeDirectory(ctx, root)
	require.NoError(t, err)
	_, err = first.Resolve(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newTestEngine(t, dbPath, WithIncremental(true))
	scan, err := second.AnalyzeDirectory(ctx, root)
	require.NoError(t, err)
	assert.Empty(t, scan.Analyses)
	assert.Equal(t, 2, scan.Skipped)

	res, err := second.Resolve(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.ResolvedCount(), 1)
	assert.Len(t, second.Analyses(), 2)
}

func TestEngine_FlagPolicy(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"main.rs": "fn main() {\n    SomethingNeverDefined();\n}\n",
	})
	e := newTestEngine(t, "", WithPolicy(Flag))
	ctx := context.Background()

	_, err := e.AnalyzeDirectory(ctx, root)
	require.NoError(t, err)
	_, err = e.Resolve(ctx)
	require.NoError(t, err)

	a := analysisFor(t, e.Analyses(), "main.rs")
	var to []string
	for _, r := range a.Relationships {
		if r.Kind == model.RelCalls {
			to = append(to, string(r.To))
		}
	}
	assert.Equal(t, []string{":0:UNRESOLVED::SomethingNeverDefined"}, to)
}

func TestEngine_ResolveIsRepeatable(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"models/user.py":  "class User:\n    pass\n",
		"services/svc.py": "from models.user import User\ndef f(): return User()",
	})
	e := newTestEngine(t, "")
	ctx := context.Background()

	_, err := e.AnalyzeDirectory(ctx, root)
	require.NoError(t, err)
	first, err := e.Resolve(ctx)
	require.NoError(t, err)
	second, err := e.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ResolvedCount(), second.ResolvedCount())
	assert.Equal(t, first.Total(), second.Total())
}

func TestEngine_PerFileErrors(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"ok.go": "package main\n\nfunc main() {}\n",
	})
	e := newTestEngine(t, "")
	e.Middleware().Use(&middleware.Funcs{
		ID: "deny",
		BeforeParseFn: func(_ context.Context, c *middleware.Context) error {
			return assert.AnError
		},
	})

	res, err := e.AnalyzeDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, res.Analyses)
	require.Len(t, res.Errors, 1)
	assert.True(t, errs.Is(res.Errors[0].Err, errs.Middleware))
}

func TestEngine_AnalyzeFileErrors(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"notes.txt": "hello\n",
		"big.py":    strings.Repeat("x = 1\n", 100),
	})
	cfg := config.Default()
	cfg.MaxFileSize = 10
	e := newTestEngine(t, "", WithConfig(cfg))
	ctx := context.Background()

	_, err := e.AnalyzeFile(ctx, filepath.Join(root, "notes.txt"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.UnsupportedLanguage))

	_, err = e.AnalyzeFile(ctx, filepath.Join(root, "big.py"))
	require.Error(t, err)

	_, err = e.AnalyzeFile(ctx, filepath.Join(root, "missing.py"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Io))
}

func TestEngine_Forget(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"a.py": "def a():\n    pass\n",
		"b.py": "def b():\n    pass\n",
	})
	e := newTestEngine(t, "")
	ctx := context.Background()

	_, err := e.AnalyzeDirectory(ctx, root)
	require.NoError(t, err)
	_, err = e.Resolve(ctx)
	require.NoError(t, err)

	require.NoError(t, e.Forget("a.py"))
	_, err = e.Resolve(ctx)
	require.NoError(t, err)
	require.Len(t, e.Analyses(), 1)
	assert.Equal(t, "b.py", e.Analyses()[0].Path)

	syms, err := e.Query().SymbolsInFile("a.py")
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Output.Format = "xml"
	_, err := New(filepath.Join(t.TempDir(), "agentmap.db"), WithConfig(cfg))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Config))
}

func TestNew_MalformedQueriesAreFatal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "python"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "python", "defs.scm"), []byte("(function_definition"), 0o644))

	_, err := New(filepath.Join(t.TempDir(), "agentmap.db"), WithQueriesDir(dir))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Query))
}
